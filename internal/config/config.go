// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied by normalize when a value is unset.
const (
	// defaultBatchSize is the provider's per-call symbol limit.
	defaultBatchSize = 45
	// defaultBatchPause is the pacing delay between consecutive quote batches.
	defaultBatchPause = 500 * time.Millisecond
	// defaultOrderPause is the pacing delay after every live-quote/order pair.
	defaultOrderPause = 700 * time.Millisecond
	// defaultPollInterval is how often a trailing-stop monitor fetches LTP.
	defaultPollInterval = 2 * time.Second
	// defaultTopN is how many candidates survive ranking per side.
	defaultTopN = 3
	// defaultStopLossPct is the trailing stop distance from the high-water mark.
	defaultStopLossPct = 5.0
)

// Duration is a time.Duration that unmarshals from YAML strings like "500ms"
// or from bare integers (nanoseconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		if s == "" {
			*d = 0
			return nil
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Universe    UniverseConfig    `yaml:"universe"`
	Scan        ScanConfig        `yaml:"scan"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings. Secrets are expanded from the
// environment (${SMARTAPI_KEY} etc.) before parsing.
type BrokerConfig struct {
	APIKey         string `yaml:"api_key"`
	AccessToken    string `yaml:"access_token"`
	BaseURL        string `yaml:"base_url"`
	ScripMasterURL string `yaml:"scrip_master_url"`
}

// UniverseConfig is the equity universe scanned every cycle.
type UniverseConfig struct {
	Symbols []string `yaml:"symbols"`
}

// ScanConfig defines quote batching and scoring parameters.
type ScanConfig struct {
	BatchSize  int      `yaml:"batch_size"`
	BatchPause Duration `yaml:"batch_pause"`
	TopN       int      `yaml:"top_n"`
	Interval   Duration `yaml:"interval"` // 0 = single scan per run
}

// ExecutionConfig defines order placement parameters.
type ExecutionConfig struct {
	Expiry      string   `yaml:"expiry"` // provider expiry string, e.g. "27MAR25"
	OrderPause  Duration `yaml:"order_pause"`
	ProductType string   `yaml:"product_type"`
	Variety     string   `yaml:"variety"`
}

// MonitorConfig defines trailing-stop behavior.
type MonitorConfig struct {
	StopLossPct  float64  `yaml:"stop_loss_pct"`
	PollInterval Duration `yaml:"poll_interval"`
}

// StorageConfig defines storage settings for the run ledger.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the optional status server.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"` // empty disables auth
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// normalize fills unset values with their defaults.
func (c *Config) normalize() {
	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = defaultBatchSize
	}
	if c.Scan.BatchPause == 0 {
		c.Scan.BatchPause = Duration(defaultBatchPause)
	}
	if c.Scan.TopN == 0 {
		c.Scan.TopN = defaultTopN
	}
	if c.Execution.OrderPause == 0 {
		c.Execution.OrderPause = Duration(defaultOrderPause)
	}
	if c.Execution.ProductType == "" {
		c.Execution.ProductType = "CARRYFORWARD"
	}
	if c.Execution.Variety == "" {
		c.Execution.Variety = "NORMAL"
	}
	if c.Monitor.StopLossPct == 0 {
		c.Monitor.StopLossPct = defaultStopLossPct
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = Duration(defaultPollInterval)
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/runs.json"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 9090
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if !c.IsPaperTrading() {
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required in live mode")
		}
		if c.Broker.AccessToken == "" {
			return fmt.Errorf("broker.access_token is required in live mode")
		}
	}

	if len(c.Universe.Symbols) == 0 {
		return fmt.Errorf("universe.symbols must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Universe.Symbols))
	for _, s := range c.Universe.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("universe.symbols contains an empty symbol")
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("universe.symbols contains duplicate symbol %q", s)
		}
		seen[s] = struct{}{}
	}

	if c.Scan.BatchSize <= 0 || c.Scan.BatchSize > 50 {
		return fmt.Errorf("scan.batch_size must be in (0,50], provider limit is 50")
	}
	if c.Scan.BatchPause < 0 {
		return fmt.Errorf("scan.batch_pause must be >= 0")
	}
	if c.Scan.TopN <= 0 {
		return fmt.Errorf("scan.top_n must be > 0")
	}

	if c.Execution.Expiry == "" {
		return fmt.Errorf("execution.expiry is required (provider expiry string, e.g. 27MAR25)")
	}
	if c.Execution.OrderPause < 0 {
		return fmt.Errorf("execution.order_pause must be >= 0")
	}

	if c.Monitor.StopLossPct <= 0 || c.Monitor.StopLossPct >= 100 {
		return fmt.Errorf("monitor.stop_loss_pct must be in (0,100)")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be > 0")
	}

	if c.Dashboard.Enabled && (c.Dashboard.Port < 1 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}
