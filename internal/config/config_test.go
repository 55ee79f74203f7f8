package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
environment:
  mode: paper
  log_level: info

universe:
  symbols:
    - RELIANCE
    - SBIN

scan:
  batch_size: 45
  batch_pause: 500ms
  top_n: 3

execution:
  expiry: 25SEP25
  order_pause: 700ms

monitor:
  stop_loss_pct: 5.0
  poll_interval: 2s

storage:
  path: data/runs.json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.IsPaperTrading() {
		t.Error("mode paper must report paper trading")
	}
	if cfg.Scan.BatchSize != 45 {
		t.Errorf("batch size = %d", cfg.Scan.BatchSize)
	}
	if cfg.Scan.BatchPause.Std() != 500*time.Millisecond {
		t.Errorf("batch pause = %v", cfg.Scan.BatchPause.Std())
	}
	if cfg.Monitor.PollInterval.Std() != 2*time.Second {
		t.Errorf("poll interval = %v", cfg.Monitor.PollInterval.Std())
	}
	if len(cfg.Universe.Symbols) != 2 {
		t.Errorf("universe = %v", cfg.Universe.Symbols)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	minimal := `
environment:
  mode: paper
universe:
  symbols: [RELIANCE]
execution:
  expiry: 25SEP25
`
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scan.BatchSize != 45 {
		t.Errorf("default batch size = %d, expected 45", cfg.Scan.BatchSize)
	}
	if cfg.Scan.BatchPause.Std() != 500*time.Millisecond {
		t.Errorf("default batch pause = %v", cfg.Scan.BatchPause.Std())
	}
	if cfg.Scan.TopN != 3 {
		t.Errorf("default top n = %d", cfg.Scan.TopN)
	}
	if cfg.Execution.OrderPause.Std() != 700*time.Millisecond {
		t.Errorf("default order pause = %v", cfg.Execution.OrderPause.Std())
	}
	if cfg.Execution.ProductType != "CARRYFORWARD" || cfg.Execution.Variety != "NORMAL" {
		t.Errorf("default order params = %s / %s", cfg.Execution.ProductType, cfg.Execution.Variety)
	}
	if cfg.Monitor.StopLossPct != 5.0 {
		t.Errorf("default stop pct = %v", cfg.Monitor.StopLossPct)
	}
	if cfg.Monitor.PollInterval.Std() != 2*time.Second {
		t.Errorf("default poll interval = %v", cfg.Monitor.PollInterval.Std())
	}
	if cfg.Storage.Path != "data/runs.json" {
		t.Errorf("default storage path = %s", cfg.Storage.Path)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_SMARTAPI_KEY", "key-from-env")

	content := strings.Replace(validYAML, "environment:", `broker:
  api_key: ${TEST_SMARTAPI_KEY}

environment:`, 1)
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.APIKey != "key-from-env" {
		t.Errorf("api key = %q, expected env expansion", cfg.Broker.APIKey)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	content := validYAML + "\nbogus_section:\n  x: 1\n"
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("unknown top-level field must be rejected")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad mode", func(c *Config) { c.Environment.Mode = "backtest" }},
		{"live without key", func(c *Config) {
			c.Environment.Mode = "live"
			c.Broker.APIKey = ""
		}},
		{"empty universe", func(c *Config) { c.Universe.Symbols = nil }},
		{"duplicate symbol", func(c *Config) { c.Universe.Symbols = []string{"SBIN", "SBIN"} }},
		{"blank symbol", func(c *Config) { c.Universe.Symbols = []string{" "} }},
		{"batch size over provider limit", func(c *Config) { c.Scan.BatchSize = 51 }},
		{"zero top n", func(c *Config) { c.Scan.TopN = -1 }},
		{"missing expiry", func(c *Config) { c.Execution.Expiry = "" }},
		{"stop pct too large", func(c *Config) { c.Monitor.StopLossPct = 100 }},
		{"negative poll interval", func(c *Config) { c.Monitor.PollInterval = Duration(-time.Second) }},
		{"bad dashboard port", func(c *Config) {
			c.Dashboard.Enabled = true
			c.Dashboard.Port = 70000
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	content := strings.Replace(validYAML, "batch_pause: 500ms", "batch_pause: not-a-duration", 1)
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("unparsable duration must be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing config file must error")
	}
}
