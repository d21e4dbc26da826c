package p2p

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shieldnote/internal/ledger"
	"shieldnote/internal/wallet"
	"shieldnote/internal/withdrawal"
)

// Helper to create a test network of nodes with unique ports
func setupTestNetwork(t *testing.T, nodeIDs []string, basePort int) map[string]*Node {
	t.Helper()
	peerDirectory := make(map[string]string)
	for i, id := range nodeIDs {
		peerDirectory[id] = fmt.Sprintf("localhost:%d", basePort+i)
	}
	nodes := make(map[string]*Node)
	var wg sync.WaitGroup
	readyCh := make(chan struct{})
	for id, addr := range peerDirectory {
		nodes[id] = NewNode(id, addr, peerDirectory, &wg, zerolog.Nop())
	}
	for _, node := range nodes {
		node.StartServer(readyCh)
	}
	for i := 0; i < len(nodes); i++ {
		<-readyCh
	}
	return nodes
}

func shutdownNetwork(nodes map[string]*Node) {
	for _, n := range nodes {
		n.Close()
	}
}

func TestCustomMessage(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B"}, 9100)
	defer shutdownNetwork(nodes)
	done := make(chan struct{}, 1)
	var once sync.Once
	nodes["B"].RegisterHandler("test_text", func(n *Node, msg Message) {
		once.Do(func() { done <- struct{}{} })
	})
	if err := nodes["A"].SendMessage("B", "test_text", PingPayload{SenderID: "A"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for message")
	}
}

func TestBroadcast(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B", "C"}, 9200)
	defer shutdownNetwork(nodes)
	var mu sync.Mutex
	received := make(map[string]bool)
	for _, id := range []string{"B", "C"} {
		nodes[id].RegisterHandler("announce", func(n *Node, msg Message) {
			mu.Lock()
			received[n.ID] = true
			mu.Unlock()
		})
	}
	nodes["A"].Broadcast("announce", PingPayload{SenderID: "A"})
	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if !received["B"] || !received["C"] {
		t.Fatal("Broadcast not received by all nodes")
	}
}

func TestWithdrawDroppedWithoutVerifier(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B"}, 9300)
	defer shutdownNetwork(nodes)

	l := ledger.New()
	l.PublishRoot(big.NewInt(42))
	// Without a verifying key the node must drop announcements instead of
	// admitting unverified withdrawals.
	tx := &withdrawal.Tx{
		Root:        big.NewInt(42),
		Nullifier:   big.NewInt(7),
		Token:       big.NewInt(1),
		AssetAmount: big.NewInt(100),
		Proof:       []byte("not a proof"),
	}
	nodes["B"].SetLedger(l, nil)

	if err := nodes["A"].SendMessage("B", TypeWithdrawTx, WithdrawTxPayload{SenderID: "A", Tx: tx}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if len(l.Txs()) != 0 {
		t.Fatal("ledger admitted a withdraw without a verifying key")
	}
}

func TestDepositNoteRecognition(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B"}, 9400)
	defer shutdownNetwork(nodes)

	recipient, err := wallet.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey failed: %v", err)
	}
	nodes["B"].SetWallet(&wallet.Wallet{Secret: recipient.Secret})

	eph, stealth, err := wallet.DeriveStealth(recipient.Public())
	if err != nil {
		t.Fatalf("DeriveStealth failed: %v", err)
	}
	payload := DepositNotePayload{
		SenderID:  "A",
		Ephemeral: eph.Address(),
		Stealth:   stealth.Address(),
		Index:     5,
		Timestamp: "1000",
	}
	if err := nodes["A"].SendMessage("B", TypeDepositNote, payload); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	// A note derived for someone else must not be claimed.
	other, err := wallet.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey failed: %v", err)
	}
	ephOther, stealthOther, err := wallet.DeriveStealth(other.Public())
	if err != nil {
		t.Fatalf("DeriveStealth failed: %v", err)
	}
	otherPayload := DepositNotePayload{
		SenderID:  "A",
		Ephemeral: ephOther.Address(),
		Stealth:   stealthOther.Address(),
		Index:     6,
		Timestamp: "1001",
	}
	if err := nodes["A"].SendMessage("B", TypeDepositNote, otherPayload); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	time.Sleep(500 * time.Millisecond)
	claims := nodes["B"].Claims()
	if len(claims) != 1 {
		t.Fatalf("expected exactly 1 claim, got %d", len(claims))
	}
	if claims[0].Index != 5 {
		t.Errorf("claimed the wrong note: index %d", claims[0].Index)
	}
	if claims[0].Secret == nil || claims[0].Secret.Sign() == 0 {
		t.Errorf("claim carries no usable stealth secret")
	}
}

func TestSendToNonExistentPeer(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A"}, 9500)
	defer shutdownNetwork(nodes)
	if err := nodes["A"].SendMessage("B", "test_text", PingPayload{SenderID: "A"}); err == nil {
		t.Fatal("Expected error when sending to non-existent peer, got nil")
	}
}

func TestHealthCheck(t *testing.T) {
	nodes := setupTestNetwork(t, []string{"A", "B"}, 9600)
	defer shutdownNetwork(nodes)
	nodes["A"].HealthCheck()
	time.Sleep(500 * time.Millisecond)
	nodes["A"].healthMutex.Lock()
	healthy := nodes["A"].health["B"]
	nodes["A"].healthMutex.Unlock()
	if !healthy {
		t.Fatal("Node B should be healthy after ping/pong")
	}
}
