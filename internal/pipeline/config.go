package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StageConfig sets the retry policy of one stage.
type StageConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// WebhookConfig configures batch event notifications.
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the pipeline runtime configuration, loaded from YAML.
type Config struct {
	PollInterval     time.Duration          `yaml:"poll_interval"`
	ClaimLimit       int                    `yaml:"claim_limit"`
	SeasonPrecedence string                 `yaml:"season_precedence"`
	Webhook          WebhookConfig          `yaml:"webhook"`
	Stages           map[string]StageConfig `yaml:"stages"`
}

// DefaultConfig returns the built-in policy: modest retries everywhere and
// patient polling against the charging authority.
func DefaultConfig() Config {
	return Config{
		PollInterval:     2 * time.Second,
		ClaimLimit:       10,
		SeasonPrecedence: "wrls",
		Stages: map[string]StageConfig{
			StageCreateBillRun:          {MaxAttempts: 3, Backoff: 10 * time.Second},
			StagePopulateChargeVersions: {MaxAttempts: 3, Backoff: 10 * time.Second},
			StageTwoPartTariffMatching:  {MaxAttempts: 3, Backoff: 10 * time.Second},
			StageProcessChargeVersions:  {MaxAttempts: 5, Backoff: 10 * time.Second},
			StagePrepareTransactions:    {MaxAttempts: 5, Backoff: 30 * time.Second},
			StageRefreshTotals:          {MaxAttempts: 10, Backoff: 30 * time.Second},
			StageSendBatch:              {MaxAttempts: 3, Backoff: 30 * time.Second},
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing path
// returns the defaults untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pipeline: read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("pipeline: parse config: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = 10
	}
	if cfg.SeasonPrecedence != "wrls" && cfg.SeasonPrecedence != "nald" {
		return Config{}, fmt.Errorf("pipeline: invalid season_precedence %q", cfg.SeasonPrecedence)
	}
	return cfg, nil
}

// StagePolicy returns the retry policy for a stage, falling back to a
// conservative default for unknown stages.
func (c Config) StagePolicy(stage string) StageConfig {
	if policy, ok := c.Stages[stage]; ok {
		if policy.MaxAttempts <= 0 {
			policy.MaxAttempts = 3
		}
		if policy.Backoff <= 0 {
			policy.Backoff = 10 * time.Second
		}
		return policy
	}
	return StageConfig{MaxAttempts: 3, Backoff: 10 * time.Second}
}
