package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spooky-finn/gatews-bridge/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Gate       GateConfig       `yaml:"gate"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Maintainer MaintainerConfig `yaml:"maintainer"`
	Symbols    []string         `yaml:"symbols"`
	RPC        RPCConfig        `yaml:"rpc"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

type GateConfig struct {
	App              string        `yaml:"app"`
	Settle           string        `yaml:"settle"`
	Testnet          bool          `yaml:"testnet"`
	URL              string        `yaml:"url"`
	Key              string        `yaml:"key"`
	Secret           string        `yaml:"secret"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	MaxRetry         int           `yaml:"max_retry"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	SkipTLSVerify    bool          `yaml:"skip_tls_verify"`
	ShowReconnectMsg bool          `yaml:"show_reconnect_msg"`
}

type SnapshotConfig struct {
	BaseURL       string  `yaml:"base_url"`
	Limit         int     `yaml:"limit"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

type MaintainerConfig struct {
	CacheSize  int           `yaml:"cache_size"`
	QueueSize  int           `yaml:"queue_size"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Workers    int           `yaml:"workers"`
}

type RPCConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	return &Config{
		Gate: GateConfig{
			App:              "spot",
			Settle:           "usdt",
			PingInterval:     10 * time.Second,
			MaxRetry:         10,
			BaseDelay:        500 * time.Millisecond,
			ShowReconnectMsg: true,
		},
		Snapshot: SnapshotConfig{
			BaseURL:       "https://api.gateio.ws/api/v4",
			Limit:         100,
			RatePerSecond: 10,
		},
		Maintainer: MaintainerConfig{
			CacheSize:  500,
			QueueSize:  500,
			RetryDelay: 500 * time.Millisecond,
			Workers:    8,
		},
		RPC:     RPCConfig{Addr: ":50051"},
		Metrics: MetricsConfig{Addr: ":9090"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the optional YAML file at path on top of the defaults, then
// applies .env and environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GATE_API_KEY"); v != "" {
		c.Gate.Key = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATE_API_SECRET"); v != "" {
		c.Gate.Secret = strings.TrimSpace(v)
	}
	if v := os.Getenv("GATE_WS_URL"); v != "" {
		c.Gate.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.TrimSpace(v)
	}
}

func (c *Config) Validate() error {
	switch c.Gate.App {
	case "spot", "futures", "pilot":
	default:
		return fmt.Errorf("gate.app must be one of spot, futures, pilot, got %q", c.Gate.App)
	}
	if (c.Gate.Key == "") != (c.Gate.Secret == "") {
		return fmt.Errorf("gate.key and gate.secret must be set together")
	}
	if c.Gate.PingInterval <= 0 {
		return fmt.Errorf("gate.ping_interval must be greater than 0")
	}
	if c.Gate.BaseDelay <= 0 {
		return fmt.Errorf("gate.base_delay must be greater than 0")
	}
	if c.Snapshot.Limit <= 0 {
		return fmt.Errorf("snapshot.limit must be greater than 0")
	}
	if c.Snapshot.RatePerSecond <= 0 {
		return fmt.Errorf("snapshot.rate_per_second must be greater than 0")
	}
	if c.Maintainer.CacheSize <= 0 {
		return fmt.Errorf("maintainer.cache_size must be greater than 0")
	}
	if c.Maintainer.QueueSize <= 0 {
		return fmt.Errorf("maintainer.queue_size must be greater than 0")
	}
	if c.Maintainer.RetryDelay <= 0 {
		return fmt.Errorf("maintainer.retry_delay must be greater than 0")
	}
	if c.Maintainer.Workers <= 0 {
		return fmt.Errorf("maintainer.workers must be greater than 0")
	}
	for _, s := range c.Symbols {
		if _, err := domain.NewMarketSymbolFromString(s); err != nil {
			return fmt.Errorf("symbols: %w", err)
		}
	}
	if c.RPC.Addr == "" {
		return fmt.Errorf("rpc.addr is required")
	}
	return nil
}
