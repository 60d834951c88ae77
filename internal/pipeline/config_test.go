package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	raw := `
poll_interval: 5s
season_precedence: nald
webhook:
  url: http://localhost:9000/events
  timeout: 3s
stages:
  refresh-totals:
    max_attempts: 20
    backoff: 1m
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("poll interval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.SeasonPrecedence != "nald" {
		t.Fatalf("season precedence = %q, want nald", cfg.SeasonPrecedence)
	}
	if cfg.Webhook.URL != "http://localhost:9000/events" {
		t.Fatalf("webhook url = %q", cfg.Webhook.URL)
	}
	policy := cfg.StagePolicy(StageRefreshTotals)
	if policy.MaxAttempts != 20 || policy.Backoff != time.Minute {
		t.Fatalf("refresh policy = %+v", policy)
	}
	// Untouched stages keep their defaults.
	if got := cfg.StagePolicy(StageCreateBillRun); got.MaxAttempts != 3 {
		t.Fatalf("create policy = %+v, want default", got)
	}
}

func TestLoadConfigRejectsUnknownPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte("season_precedence: upstream\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted invalid season precedence")
	}
}

func TestStagePolicyFallsBackForUnknownStage(t *testing.T) {
	policy := DefaultConfig().StagePolicy("no-such-stage")
	if policy.MaxAttempts != 3 || policy.Backoff != 10*time.Second {
		t.Fatalf("fallback policy = %+v", policy)
	}
}

func TestLoadConfigMissingPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ClaimLimit != DefaultConfig().ClaimLimit {
		t.Fatalf("claim limit = %d", cfg.ClaimLimit)
	}
}
