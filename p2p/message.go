package p2p

import (
	"encoding/json"

	"shieldnote/internal/withdrawal"
)

// Message is the generic envelope for anything sent between nodes. Payloads
// are decoded per type, so new message kinds do not touch the transport.
type Message struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// Built-in message types.
const (
	TypeWithdrawTx  = "withdraw_tx"
	TypeDepositNote = "deposit_note"
	TypePing        = "ping"
	TypePong        = "pong"
)

// WithdrawTxPayload announces a withdrawal to the network. The receiving node
// re-verifies the proof against its own ledger before admitting it.
type WithdrawTxPayload struct {
	SenderID string         `json:"senderId"`
	Tx       *withdrawal.Tx `json:"tx"`
}

// DepositNotePayload notifies the network of a note deposited to a stealth
// address. Ephemeral and Stealth are hex-encoded curve points; a recipient
// recovers the stealth secret from the ephemeral key and recognizes the note
// as theirs by re-deriving the stealth address.
type DepositNotePayload struct {
	SenderID  string `json:"senderId"`
	Ephemeral string `json:"ephemeral"`
	Stealth   string `json:"stealth"`
	Index     uint32 `json:"index"`
	Timestamp string `json:"timestamp"`
}

// PingPayload and PongPayload implement liveness probing between peers.
type PingPayload struct {
	SenderID string `json:"senderId"`
}

type PongPayload struct {
	SenderID string `json:"senderId"`
}
