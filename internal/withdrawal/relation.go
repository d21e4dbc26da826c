// relation.go - Native evaluation of the withdrawal relation.
//
// Maps a witness deterministically to (root, nullifier). The computation is a
// pure forward pipeline: index bits and the public key are derived once, the
// leaf is folded through the sibling path level by level, and the nullifier is
// computed on an independent branch. Malformed witnesses are rejected up front
// since, unlike the circuit, native code cannot rely on constraints to bound
// the inputs.

package withdrawal

import (
	"errors"
	"fmt"
	"math/big"
)

// Precondition violations. The computation is pure and deterministic, so none
// of these are retryable: the same witness fails the same way every time.
var (
	ErrMissingValue     = errors.New("witness value is nil")
	ErrNotInField       = errors.New("value outside the field")
	ErrSecretOutOfRange = errors.New("secret outside the scalar field")
	ErrBitNotBinary     = errors.New("direction bit must be 0 or 1")
	ErrBadDecomposition = errors.New("index bits do not reconstruct the index")
)

// Witness is the private input of the relation. It is never revealed; only
// the derived (root, nullifier) pair is published.
type Witness struct {
	Index       uint32
	Secret      *big.Int
	Timestamp   *big.Int
	SiblingPath [TreeDepth]*big.Int
}

// Output holds the two public outputs of the relation.
type Output struct {
	Root      *big.Int
	Nullifier *big.Int
}

// Validate checks that every witness field lies in its expected domain.
// Secrets must be in [1, r) of the BLS12-377 scalar field: zero is rejected
// rather than given a canonical public key, since G^0 is the point at
// infinity and has no affine coordinates to hash.
func (w Witness) Validate() error {
	if w.Secret == nil {
		return fmt.Errorf("secret: %w", ErrMissingValue)
	}
	if w.Secret.Sign() <= 0 || w.Secret.Cmp(scalarModulus) >= 0 {
		return ErrSecretOutOfRange
	}
	if w.Timestamp == nil {
		return fmt.Errorf("timestamp: %w", ErrMissingValue)
	}
	if w.Timestamp.Sign() < 0 || w.Timestamp.Cmp(fieldModulus) >= 0 {
		return fmt.Errorf("timestamp: %w", ErrNotInField)
	}
	for i, sib := range w.SiblingPath {
		if sib == nil {
			return fmt.Errorf("sibling %d: %w", i, ErrMissingValue)
		}
		if sib.Sign() < 0 || sib.Cmp(fieldModulus) >= 0 {
			return fmt.Errorf("sibling %d: %w", i, ErrNotInField)
		}
	}
	return nil
}

// Commitment derives the spender's note ownership tag: Hash(pk.x, pk.y) with
// pk = G^secret. It depends on the secret alone.
func (p Primitives) Commitment(secret *big.Int) *big.Int {
	x, y := p.ScalarMul(secret)
	return p.Hash(x, y)
}

// Leaf builds the tree leaf identity of a note: Hash(commitment, timestamp).
func (p Primitives) Leaf(commitment, timestamp *big.Int) *big.Int {
	return p.Hash(commitment, timestamp)
}

// Nullifier derives the spend-uniqueness tag: Hash(secret, index). It is
// independent of the path-folding branch.
func (p Primitives) Nullifier(secret *big.Int, index uint32) *big.Int {
	return p.Hash(secret, new(big.Int).SetUint64(uint64(index)))
}

// FoldStep combines the running hash with one sibling. A zero bit keeps the
// accumulator on the left, a one bit swaps it to the right. Any other bit
// value is rejected: the circuit's algebraic swap identity only holds for
// {0, 1}, and everything else would be an affine interpolation between the
// two orderings rather than a real tree node.
func (p Primitives) FoldStep(cur, sibling *big.Int, bit uint8) (*big.Int, error) {
	switch bit {
	case 0:
		return p.Hash(cur, sibling), nil
	case 1:
		return p.Hash(sibling, cur), nil
	default:
		return nil, fmt.Errorf("%w: got %d", ErrBitNotBinary, bit)
	}
}

// Root folds the leaf through all TreeDepth levels of the sibling path and
// returns the reconstructed root. The steps are sequentially dependent; each
// consumes the previous accumulator.
func (p Primitives) Root(leaf *big.Int, siblings [TreeDepth]*big.Int, bits [TreeDepth]uint8) (*big.Int, error) {
	cur := leaf
	for i := 0; i < TreeDepth; i++ {
		next, err := p.FoldStep(cur, siblings[i], bits[i])
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		cur = next
	}
	return cur, nil
}

// Evaluate maps the witness to its (root, nullifier) pair. The two outputs
// share no state beyond the witness itself: changing the sibling path can
// never change the nullifier.
func (p Primitives) Evaluate(w Witness) (Output, error) {
	if err := w.Validate(); err != nil {
		return Output{}, err
	}

	bits := p.Decompose(w.Index)
	if err := checkDecomposition(w.Index, bits); err != nil {
		return Output{}, err
	}

	commitment := p.Commitment(w.Secret)
	leaf := p.Leaf(commitment, w.Timestamp)
	root, err := p.Root(leaf, w.SiblingPath, bits)
	if err != nil {
		return Output{}, err
	}

	nullifier := p.Nullifier(w.Secret, w.Index)
	return Output{Root: root, Nullifier: nullifier}, nil
}

// Evaluate runs the relation with the production MiMC/BLS12-377 collaborators.
func Evaluate(w Witness) (Output, error) {
	return DefaultPrimitives().Evaluate(w)
}

// checkDecomposition enforces the reconstruction invariant on externally
// supplied bit decompositions.
func checkDecomposition(index uint32, bits [TreeDepth]uint8) error {
	var sum uint64
	for i, b := range bits {
		if b > 1 {
			return fmt.Errorf("bit %d: %w", i, ErrBitNotBinary)
		}
		sum += uint64(b) << uint(i)
	}
	if sum != uint64(index) {
		return fmt.Errorf("%w: index %d, bits sum to %d", ErrBadDecomposition, index, sum)
	}
	return nil
}
