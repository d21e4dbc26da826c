// config.go - Configuration for the withdrawal daemon
package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration.
type Config struct {
	// Serving
	ListenAddr string `json:"listen_addr"`

	// File paths
	WalletPath string `json:"wallet_path"`
	KeyDir     string `json:"key_dir"`

	// Roots the ledger accepts withdrawals against, as decimal field
	// elements. Root publication itself lives outside the daemon.
	PublishedRoots []string `json:"published_roots"`

	// P2P
	NodeID  string            `json:"node_id"`
	P2PAddr string            `json:"p2p_addr"`
	Peers   map[string]string `json:"peers"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Proving endpoint rate limit (token bucket)
	ProveRateTokens int `json:"prove_rate_tokens"`
	ProveRateRefill int `json:"prove_rate_refill_per_second"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:8000",
		WalletPath:      "wallet.json",
		KeyDir:          "keys",
		PublishedRoots:  nil,
		NodeID:          "noted",
		P2PAddr:         "127.0.0.1:8100",
		Peers:           map[string]string{},
		LogLevel:        "info",
		LogFile:         "",
		ProveRateTokens: 4,
		ProveRateRefill: 1,
	}
}

// LoadConfig loads configuration from file, creating a default one if the
// file does not exist yet.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		var config Config
		if err := json.NewDecoder(f).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file.
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.WalletPath == "" {
		return fmt.Errorf("wallet_path must be set")
	}
	if c.KeyDir == "" {
		return fmt.Errorf("key_dir must be set")
	}
	if c.ProveRateTokens <= 0 {
		return fmt.Errorf("prove_rate_tokens must be positive")
	}
	if c.ProveRateRefill <= 0 {
		return fmt.Errorf("prove_rate_refill_per_second must be positive")
	}
	for i, r := range c.PublishedRoots {
		if _, ok := new(big.Int).SetString(r, 10); !ok {
			return fmt.Errorf("published_roots[%d] is not a decimal field element", i)
		}
	}
	return nil
}

// Roots parses the published roots. Call Validate first.
func (c *Config) Roots() []*big.Int {
	out := make([]*big.Int, 0, len(c.PublishedRoots))
	for _, r := range c.PublishedRoots {
		v, ok := new(big.Int).SetString(r, 10)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out
}
