// Package ledger tracks published Merkle roots and spent nullifiers, and
// admits withdrawal transactions whose proofs verify against them.
//
// The ledger is the external consumer of the withdrawal relation's outputs:
// it compares the claimed root against the set of published roots and rejects
// nullifiers that were already revealed. It holds no tree state of its own;
// root publication comes from whatever maintains the commitment tree.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark/backend/groth16"

	"shieldnote/internal/withdrawal"
)

var (
	// ErrUnknownRoot rejects proofs computed against a root that was never
	// published.
	ErrUnknownRoot = errors.New("root is not a published tree root")
	// ErrSpentNullifier rejects a replayed withdrawal.
	ErrSpentNullifier = errors.New("double-spend detected: nullifier already recorded")
)

// Ledger is an append-only record of accepted withdrawals. Safe for
// concurrent use.
type Ledger struct {
	mu         sync.RWMutex
	roots      map[string]struct{}
	nullifiers map[string]struct{}
	txs        []*withdrawal.Tx
}

// New creates an empty ledger with no published roots.
func New() *Ledger {
	return &Ledger{
		roots:      make(map[string]struct{}),
		nullifiers: make(map[string]struct{}),
	}
}

// PublishRoot registers a tree root as valid for withdrawals.
func (l *Ledger) PublishRoot(root *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roots[root.String()] = struct{}{}
}

// HasRoot reports whether root has been published.
func (l *Ledger) HasRoot(root *big.Int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.roots[root.String()]
	return ok
}

// HasNullifier reports whether a nullifier has been recorded as spent.
func (l *Ledger) HasNullifier(nullifier *big.Int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.nullifiers[nullifier.String()]
	return ok
}

// Txs returns the accepted withdrawals in admission order.
func (l *Ledger) Txs() []*withdrawal.Tx {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*withdrawal.Tx, len(l.txs))
	copy(out, l.txs)
	return out
}

// Admit records a withdrawal whose proof the caller has already verified. It
// enforces the two consumer checks of the relation: the root must be
// published and the nullifier must be fresh.
func (l *Ledger) Admit(tx *withdrawal.Tx) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.roots[tx.Root.String()]; !ok {
		return ErrUnknownRoot
	}
	key := tx.Nullifier.String()
	if _, ok := l.nullifiers[key]; ok {
		return ErrSpentNullifier
	}
	l.nullifiers[key] = struct{}{}
	l.txs = append(l.txs, tx)
	return nil
}

// Submit verifies a withdrawal proof and admits the transaction.
func (l *Ledger) Submit(tx *withdrawal.Tx, vk groth16.VerifyingKey) error {
	if err := withdrawal.Verify(tx, vk); err != nil {
		return fmt.Errorf("withdraw rejected: %w", err)
	}
	return l.Admit(tx)
}
