package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("LoadConfig did not write the default config file")
	}

	cfg.PublishedRoots = []string{"12345", "67890"}
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save failed: %v", err)
	}
	roots := loaded.Roots()
	if len(roots) != 2 || roots[0].Int64() != 12345 || roots[1].Int64() != 67890 {
		t.Fatalf("roots did not survive the round trip: %v", roots)
	}
}

func TestConfigValidateRejectsBadRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PublishedRoots = []string{"not a number"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for a non-decimal root")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2, 1, 50*time.Millisecond)
	if !rl.Allow() || !rl.Allow() {
		t.Fatal("initial tokens should be available")
	}
	if rl.Allow() {
		t.Fatal("bucket should be empty")
	}
	time.Sleep(120 * time.Millisecond)
	if !rl.Allow() {
		t.Fatal("bucket should have refilled")
	}
}

func TestLimitProvingThrottlesOnlyWithdraw(t *testing.T) {
	rl := NewRateLimiter(1, 1, time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := LimitProving(rl, next)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/withdraw", nil))
		if rec.Code != want {
			t.Fatalf("withdraw request %d: got status %d, want %d", i, rec.Code, want)
		}
	}

	// Other routes pass through with an empty bucket.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("info request throttled: status %d", rec.Code)
	}
}

func TestHealthCheckerAggregation(t *testing.T) {
	hc := NewHealthChecker(version)
	hc.RegisterComponent("good", func() error { return nil })
	health := hc.CheckHealth()
	if health.OverallStatus != Healthy {
		t.Fatalf("expected healthy, got %s", health.OverallStatus)
	}

	hc.RegisterComponent("bad", func() error { return os.ErrNotExist })
	health = hc.CheckHealth()
	if health.OverallStatus != Unhealthy {
		t.Fatalf("expected unhealthy, got %s", health.OverallStatus)
	}
	if len(health.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(health.Components))
	}
}

func TestMetricsSummary(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordProofGeneration(2 * time.Second)
	mc.RecordProofGeneration(4 * time.Second)
	mc.RecordAdmission(true)
	mc.RecordAdmission(false)
	mc.SetGauge(MetricKnownRoots, 3, nil)

	summary := mc.GetMetricsSummary()
	counters := summary["counters"].(map[string]int64)
	if counters[MetricProofCount] != 2 {
		t.Errorf("proof count = %d, want 2", counters[MetricProofCount])
	}
	if counters[MetricAdmittedCount] != 1 || counters[MetricRejectedCount] != 1 {
		t.Errorf("admission counters wrong: %v", counters)
	}
	gauges := summary["gauges"].(map[string]float64)
	if gauges[MetricKnownRoots] != 3 {
		t.Errorf("known roots gauge = %v, want 3", gauges[MetricKnownRoots])
	}
	histograms := summary["histograms"].(map[string]map[string]float64)
	if avg := histograms[MetricProofTime]["avg"]; avg != 3 {
		t.Errorf("proof time avg = %v, want 3", avg)
	}
}
