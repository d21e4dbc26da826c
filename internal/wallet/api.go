// api.go - REST API for the wallet daemon.
//
// Endpoints:
//   GET  /info     - the wallet's address
//   GET  /stealth  - a one-time address for a recipient address
//   POST /withdraw - a Groth16 withdrawal proof for a supplied note position
//   GET  /healthz  - liveness
//
// All endpoints validate input; the wallet secret never leaves the process.

package wallet

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/rs/zerolog"

	"shieldnote/internal/withdrawal"
)

// Server exposes a wallet over HTTP. The constraint system and proving key
// are optional; without them /withdraw answers 503.
type Server struct {
	wallet *Wallet
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	log    zerolog.Logger
}

// NewServer wires a wallet and (optionally) proving material into a server.
func NewServer(w *Wallet, ccs constraint.ConstraintSystem, pk groth16.ProvingKey, log zerolog.Logger) *Server {
	return &Server{wallet: w, ccs: ccs, pk: pk, log: log}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/stealth", s.handleStealth)
	mux.HandleFunc("/withdraw", s.handleWithdraw)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// InfoResponse is the reply of GET /info.
type InfoResponse struct {
	Address string `json:"address"`
}

// StealthResponse is the reply of GET /stealth.
type StealthResponse struct {
	Address   string `json:"address"`
	Ephemeral string `json:"ephemeral"`
}

// WithdrawRequest asks for a withdrawal proof. Field elements travel as
// decimal strings; the sibling path must carry exactly one value per tree
// level.
type WithdrawRequest struct {
	Index       uint32   `json:"index"`
	Timestamp   string   `json:"timestamp"`
	SiblingPath []string `json:"sibling_path"`
	Token       string   `json:"token"`
	AssetAmount string   `json:"asset_amount"`
}

// WithdrawResponse carries the published outputs and the serialized proof.
type WithdrawResponse struct {
	Root      string `json:"root"`
	Nullifier string `json:"nullifier"`
	Proof     []byte `json:"proof"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, InfoResponse{Address: s.wallet.PrivateKey().Public().Address()})
}

func (s *Server) handleStealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	recipient, err := ParseAddress(r.URL.Query().Get("address"))
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	eph, stealth, err := DeriveStealth(recipient)
	if err != nil {
		s.log.Error().Err(err).Msg("stealth derivation failed")
		http.Error(w, "stealth derivation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, StealthResponse{Address: stealth.Address(), Ephemeral: eph.Address()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.ccs == nil || s.pk == nil {
		http.Error(w, "proving keys not loaded", http.StatusServiceUnavailable)
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	witness, token, amount, err := BuildWitness(s.wallet, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	tx, err := withdrawal.Prove(*witness, token, amount, s.ccs, s.pk)
	if err != nil {
		s.log.Error().Err(err).Uint32("index", req.Index).Msg("proof generation failed")
		http.Error(w, "proof generation failed", http.StatusInternalServerError)
		return
	}
	s.log.Info().
		Uint32("index", req.Index).
		Dur("took", time.Since(start)).
		Msg("withdrawal proof generated")

	writeJSON(w, WithdrawResponse{
		Root:      tx.Root.String(),
		Nullifier: tx.Nullifier.String(),
		Proof:     tx.Proof,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// BuildWitness validates and converts a withdraw request into a relation
// witness using the wallet's secret.
func BuildWitness(wlt *Wallet, req WithdrawRequest) (*withdrawal.Witness, *big.Int, *big.Int, error) {
	if len(req.SiblingPath) != withdrawal.TreeDepth {
		return nil, nil, nil, fmt.Errorf("sibling path must have %d entries, got %d", withdrawal.TreeDepth, len(req.SiblingPath))
	}
	timestamp, ok := new(big.Int).SetString(req.Timestamp, 10)
	if !ok {
		return nil, nil, nil, fmt.Errorf("invalid timestamp")
	}
	token, ok := new(big.Int).SetString(req.Token, 10)
	if !ok {
		return nil, nil, nil, fmt.Errorf("invalid token")
	}
	amount, ok := new(big.Int).SetString(req.AssetAmount, 10)
	if !ok {
		return nil, nil, nil, fmt.Errorf("invalid asset amount")
	}

	w := &withdrawal.Witness{
		Index:     req.Index,
		Secret:    wlt.Secret,
		Timestamp: timestamp,
	}
	for i, sib := range req.SiblingPath {
		v, ok := new(big.Int).SetString(sib, 10)
		if !ok {
			return nil, nil, nil, fmt.Errorf("invalid sibling at level %d", i)
		}
		w.SiblingPath[i] = v
	}
	return w, token, amount, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
