// Package p2p implements JSON-envelope messaging between wallet nodes.
//
// Nodes gossip two things: withdrawal transactions, which every receiver
// re-verifies against its own ledger before admitting, and stealth deposit
// notes, which a receiver scans with its wallet key to find notes addressed
// to it. The transport is plain HTTP with one POST /message endpoint per
// node.
package p2p

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/rs/zerolog"

	"shieldnote/internal/ledger"
	"shieldnote/internal/wallet"
)

// Handler processes a message of a registered type.
type Handler func(n *Node, msg Message)

// Claim records a stealth note recognized as spendable by this node.
type Claim struct {
	Ephemeral string
	Index     uint32
	Timestamp string
	Secret    *big.Int
}

// Node is a participant in the withdrawal network.
type Node struct {
	ID      string
	Address string
	Peers   map[string]string // peer ID -> address

	server    *http.Server
	waitGroup *sync.WaitGroup
	log       zerolog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	// Ledger admission state; nil until SetLedger.
	ledger *ledger.Ledger
	vk     groth16.VerifyingKey

	// Stealth scanning state; nil until SetWallet.
	wallet *wallet.Wallet

	claimsMu sync.Mutex
	claims   []Claim

	healthMutex sync.Mutex
	health      map[string]bool
}

// NewNode creates and initializes a new Node.
func NewNode(id, address string, peers map[string]string, wg *sync.WaitGroup, log zerolog.Logger) *Node {
	return &Node{
		ID:        id,
		Address:   address,
		Peers:     peers,
		waitGroup: wg,
		log:       log.With().Str("node", id).Logger(),
		handlers:  make(map[string]Handler),
		health:    make(map[string]bool),
	}
}

// SetLedger attaches the ledger and verifying key used to admit broadcast
// withdrawals.
func (n *Node) SetLedger(l *ledger.Ledger, vk groth16.VerifyingKey) {
	n.ledger = l
	n.vk = vk
}

// SetWallet attaches the wallet used to scan deposit notes for claims.
func (n *Node) SetWallet(w *wallet.Wallet) {
	n.wallet = w
}

// RegisterHandler installs a handler for a custom message type.
func (n *Node) RegisterHandler(msgType string, h Handler) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	n.handlers[msgType] = h
}

// Claims returns the stealth notes this node has recognized so far.
func (n *Node) Claims() []Claim {
	n.claimsMu.Lock()
	defer n.claimsMu.Unlock()
	out := make([]Claim, len(n.claims))
	copy(out, n.claims)
	return out
}

// messageHandler is the HTTP handler for receiving messages. It decodes the
// envelope and dispatches on the payload type.
func (n *Node) messageHandler(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		n.log.Warn().Err(err).Msg("received a bad request")
		return
	}

	n.log.Debug().Str("type", msg.Type).Str("from", msg.SenderID).Msg("message received")

	switch msg.Type {
	case TypeWithdrawTx:
		var payload WithdrawTxPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			n.log.Warn().Err(err).Msg("unmarshalling withdraw payload failed")
			return
		}
		n.handleWithdrawTx(payload)

	case TypeDepositNote:
		var payload DepositNotePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			n.log.Warn().Err(err).Msg("unmarshalling deposit payload failed")
			return
		}
		n.handleDepositNote(payload)

	case TypePing:
		var payload PingPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		go n.SendMessage(payload.SenderID, TypePong, PongPayload{SenderID: n.ID})

	case TypePong:
		var payload PongPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		n.healthMutex.Lock()
		n.health[payload.SenderID] = true
		n.healthMutex.Unlock()

	default:
		n.handlersMu.RLock()
		h, ok := n.handlers[msg.Type]
		n.handlersMu.RUnlock()
		if ok {
			h(n, msg)
		} else {
			n.log.Warn().Str("type", msg.Type).Msg("unknown message type")
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "message received")
}

// handleWithdrawTx re-verifies a broadcast withdrawal and admits it to the
// local ledger. Nodes without a ledger just log and drop.
func (n *Node) handleWithdrawTx(payload WithdrawTxPayload) {
	if n.ledger == nil || n.vk == nil {
		n.log.Warn().Str("from", payload.SenderID).Msg("withdraw received but no ledger attached")
		return
	}
	if err := n.ledger.Submit(payload.Tx, n.vk); err != nil {
		n.log.Warn().Err(err).Str("from", payload.SenderID).Msg("withdraw rejected")
		return
	}
	n.log.Info().
		Str("from", payload.SenderID).
		Str("nullifier", payload.Tx.Nullifier.String()).
		Msg("withdraw admitted")
}

// handleDepositNote scans a stealth deposit with the local wallet key. The
// note is claimed when the recovered stealth secret re-derives the announced
// stealth address.
func (n *Node) handleDepositNote(payload DepositNotePayload) {
	if n.wallet == nil {
		return
	}
	eph, err := wallet.ParseEphemeralKey(payload.Ephemeral)
	if err != nil {
		n.log.Warn().Err(err).Msg("deposit note carries a bad ephemeral key")
		return
	}
	stealth, err := wallet.ParseAddress(payload.Stealth)
	if err != nil {
		n.log.Warn().Err(err).Msg("deposit note carries a bad stealth address")
		return
	}
	recovered, err := wallet.RecoverStealthSecret(n.wallet.PrivateKey(), eph)
	if err != nil {
		n.log.Warn().Err(err).Msg("stealth recovery failed")
		return
	}
	if got := recovered.Public(); !got.P.Equal(&stealth.P) {
		// Not ours.
		return
	}

	n.claimsMu.Lock()
	n.claims = append(n.claims, Claim{
		Ephemeral: payload.Ephemeral,
		Index:     payload.Index,
		Timestamp: payload.Timestamp,
		Secret:    recovered.Secret,
	})
	n.claimsMu.Unlock()
	n.log.Info().Uint32("index", payload.Index).Msg("stealth note claimed")
}

// StartServer starts the node's HTTP server in a new goroutine. It signals on
// the ready channel once the server is actively listening.
func (n *Node) StartServer(ready chan<- struct{}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/message", n.messageHandler)

	n.server = &http.Server{
		Addr:    n.Address,
		Handler: mux,
	}

	listener, err := net.Listen("tcp", n.Address)
	if err != nil {
		n.log.Fatal().Err(err).Msg("failed to listen")
	}

	n.waitGroup.Add(1)
	go func() {
		defer n.waitGroup.Done()
		n.log.Info().Str("addr", n.Address).Msg("server starting")

		ready <- struct{}{}

		if err := n.server.Serve(listener); err != http.ErrServerClosed {
			n.log.Fatal().Err(err).Msg("server failed")
		}
		n.log.Info().Msg("server stopped")
	}()
}

// Close shuts the node's server down.
func (n *Node) Close() error {
	if n.server == nil {
		return nil
	}
	return n.server.Close()
}

// SendMessage sends a typed payload to another node.
func (n *Node) SendMessage(targetID, messageType string, payload interface{}) error {
	targetAddress, ok := n.Peers[targetID]
	if !ok {
		return fmt.Errorf("peer %q not found in directory", targetID)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	messageBytes, err := json.Marshal(Message{
		Type:     messageType,
		Payload:  payloadBytes,
		SenderID: n.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message envelope: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, "http://"+targetAddress+"/message", bytes.NewBuffer(messageBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned non-OK status: %s", resp.Status)
	}
	return nil
}

// Broadcast sends a typed payload to every known peer. Per-peer failures are
// logged, not returned; gossip is best effort.
func (n *Node) Broadcast(messageType string, payload interface{}) {
	for id := range n.Peers {
		if id == n.ID {
			continue
		}
		if err := n.SendMessage(id, messageType, payload); err != nil {
			n.log.Warn().Err(err).Str("peer", id).Msg("broadcast delivery failed")
		}
	}
}

// HealthCheck pings every peer; answers arrive asynchronously as pong
// messages and are recorded in the health map.
func (n *Node) HealthCheck() {
	for id := range n.Peers {
		if id == n.ID {
			continue
		}
		if err := n.SendMessage(id, TypePing, PingPayload{SenderID: n.ID}); err != nil {
			n.healthMutex.Lock()
			n.health[id] = false
			n.healthMutex.Unlock()
		}
	}
}
