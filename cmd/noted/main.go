// main.go - Wallet and withdrawal daemon.
//
// Subcommands:
//   init   - create a wallet file with a fresh spending key
//   info   - print the wallet's address
//   prove  - generate a withdrawal proof for a note position
//   serve  - run the wallet API and gossip node
//
// Usage:
//   noted init  [-config config.json]
//   noted info  [-config config.json]
//   noted prove [-config config.json] -request req.json [-out tx.json]
//   noted serve [-config config.json]

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"shieldnote/internal/ledger"
	"shieldnote/internal/wallet"
	"shieldnote/internal/withdrawal"
	"shieldnote/p2p"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: noted <init|info|prove|serve> [flags]\n")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "prove":
		err = runProve(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "noted %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func loadConfigFlag(fs *flag.FlagSet, args []string) (*Config, error) {
	configPath := fs.String("config", "config.json", "path to the config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}

	wlt, err := wallet.Init(cfg.WalletPath, cfg.ListenAddr)
	if err != nil {
		return err
	}
	fmt.Printf("wallet created at %s\n", cfg.WalletPath)
	fmt.Printf("address: %s\n", wlt.PrivateKey().Public().Address())
	return nil
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}

	wlt, err := wallet.Load(cfg.WalletPath)
	if err != nil {
		return err
	}
	fmt.Printf("address:  %s\n", wlt.PrivateKey().Public().Address())
	fmt.Printf("endpoint: %s\n", wlt.Endpoint)
	return nil
}

func runProve(args []string) error {
	fs := flag.NewFlagSet("prove", flag.ExitOnError)
	requestPath := fs.String("request", "", "path to a JSON withdraw request")
	outPath := fs.String("out", "", "write the transaction here instead of stdout")
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}
	if *requestPath == "" {
		return fmt.Errorf("-request is required")
	}

	wlt, err := wallet.Load(cfg.WalletPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*requestPath)
	if err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	var req wallet.WithdrawRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}
	witness, token, amount, err := wallet.BuildWitness(wlt, req)
	if err != nil {
		return err
	}

	ccs, err := withdrawal.CompileCircuit()
	if err != nil {
		return fmt.Errorf("circuit compilation failed: %w", err)
	}
	if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	pk, _, err := withdrawal.SetupOrLoadKeys(ccs,
		filepath.Join(cfg.KeyDir, "proving.key"),
		filepath.Join(cfg.KeyDir, "verifying.key"))
	if err != nil {
		return fmt.Errorf("key setup failed: %w", err)
	}

	tx, err := withdrawal.Prove(*witness, token, amount, ccs, pk)
	if err != nil {
		return fmt.Errorf("proof generation failed: %w", err)
	}

	encoded, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}
	if *outPath == "" {
		fmt.Println(string(encoded))
		return nil
	}
	if err := os.WriteFile(*outPath, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	fmt.Printf("transaction written to %s\n", *outPath)
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg, err := loadConfigFlag(fs, args)
	if err != nil {
		return err
	}

	log, cleanup, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer cleanup()

	wlt, err := wallet.Load(cfg.WalletPath)
	if err != nil {
		return err
	}
	log.Info().Str("address", wlt.PrivateKey().Public().Address()).Msg("wallet loaded")

	metrics := NewMetricsCollector()

	compileStart := time.Now()
	ccs, err := withdrawal.CompileCircuit()
	if err != nil {
		return fmt.Errorf("circuit compilation failed: %w", err)
	}
	metrics.RecordCircuitCompile(time.Since(compileStart))
	log.Info().Dur("took", time.Since(compileStart)).Msg("circuit compiled")

	if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	pk, vk, err := withdrawal.SetupOrLoadKeys(ccs,
		filepath.Join(cfg.KeyDir, "proving.key"),
		filepath.Join(cfg.KeyDir, "verifying.key"))
	if err != nil {
		return fmt.Errorf("key setup failed: %w", err)
	}

	ldg := ledger.New()
	for _, root := range cfg.Roots() {
		ldg.PublishRoot(root)
	}
	metrics.SetGauge(MetricKnownRoots, float64(len(cfg.PublishedRoots)), nil)
	log.Info().Int("roots", len(cfg.PublishedRoots)).Msg("ledger initialized")

	// Gossip node: verifies broadcast withdrawals against the ledger and
	// scans deposit notes with the wallet key.
	var wg sync.WaitGroup
	node := p2p.NewNode(cfg.NodeID, cfg.P2PAddr, cfg.Peers, &wg, log)
	node.SetLedger(ldg, vk)
	node.SetWallet(wlt)
	ready := make(chan struct{}, 1)
	node.StartServer(ready)
	<-ready
	defer node.Close()

	health := NewHealthChecker(version)
	health.RegisterComponent("wallet", func() error {
		if wlt.Secret == nil || wlt.Secret.Sign() == 0 {
			return fmt.Errorf("wallet secret missing")
		}
		return nil
	})
	health.RegisterComponent("prover", func() error {
		if pk == nil || vk == nil {
			return fmt.Errorf("proving keys not loaded")
		}
		return nil
	})
	health.RegisterComponent("ledger", func() error {
		if ldg == nil {
			return fmt.Errorf("ledger not attached")
		}
		return nil
	})

	api := wallet.NewServer(wlt, ccs, pk, log)
	limiter := NewRateLimiter(cfg.ProveRateTokens, cfg.ProveRateRefill, time.Second)

	mux := http.NewServeMux()
	mux.Handle("/", LimitProving(limiter, instrumentProofs(metrics, api.Handler())))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, health.CheckHealth())
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, metrics.GetMetricsSummary())
	})
	mux.HandleFunc("/claims", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, node.Claims())
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("wallet API listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	node.Close()
	wg.Wait()
	return nil
}

// instrumentProofs records the count and latency of proof requests.
func instrumentProofs(mc *MetricsCollector, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/withdraw" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status == http.StatusOK {
			mc.RecordProofGeneration(time.Since(start))
		} else {
			mc.RecordError(fmt.Sprintf("withdraw_%d", rec.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
