package infra

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rbot_go/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. RBOT_LOG_LEVEL.
const EnvPrefix = "RBOT_"

// Config holds every application setting.
// LoadConfig reads the YAML file, then applies environment overrides.
type Config struct {
	App struct {
		Name    string `yaml:"name" env:"APP_NAME"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Logging struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
		Dir   string `yaml:"dir" env:"LOG_DIR"`
	} `yaml:"logging"`

	Storage struct {
		// DBRoot is the directory holding the sqlite trade archive.
		DBRoot string `yaml:"db_root" env:"DB_ROOT"`
	} `yaml:"storage"`

	HTTP struct {
		// Listen address for the book and metrics endpoints; empty disables it.
		Listen string `yaml:"listen" env:"HTTP_LISTEN"`
	} `yaml:"http"`

	Engine struct {
		InboxSize   int `yaml:"inbox_size" env:"ENGINE_INBOX_SIZE"`
		DedupWindow int `yaml:"dedup_window" env:"ENGINE_DEDUP_WINDOW"`
	} `yaml:"engine"`

	Retry struct {
		InitialIntervalMS int  `yaml:"initial_interval_ms" env:"RETRY_INITIAL_INTERVAL_MS"`
		MaxIntervalMS     int  `yaml:"max_interval_ms" env:"RETRY_MAX_INTERVAL_MS"`
		MaxTries          uint `yaml:"max_tries" env:"RETRY_MAX_TRIES"`
		MaxElapsedSec     int  `yaml:"max_elapsed_sec" env:"RETRY_MAX_ELAPSED_SEC"`
	} `yaml:"retry"`

	// Publish configures the market data sinks used by markets with publish set.
	Publish struct {
		RedisURL       string   `yaml:"redis_url" env:"PUBLISH_REDIS_URL"`
		BookTTLSec     int      `yaml:"book_ttl_sec"`
		BookIntervalMS int      `yaml:"book_interval_ms"`
		BookDepth      int      `yaml:"book_depth"`
		KafkaBrokers   []string `yaml:"kafka_brokers" env:"PUBLISH_KAFKA_BROKERS" envSeparator:","`
		KafkaTopic     string   `yaml:"kafka_topic" env:"PUBLISH_KAFKA_TOPIC"`
	} `yaml:"publish"`

	Markets []Market `yaml:"markets" env:"-"`
}

// Market configures one exchange stream.
type Market struct {
	Exchange string `yaml:"exchange"`
	Category string `yaml:"category"`
	Symbol   string `yaml:"symbol"`
	WSURL    string `yaml:"ws_url"`

	PingIntervalSec    int `yaml:"ping_interval_sec"`
	SwitchIntervalSec  int `yaml:"switch_interval_sec"`
	OverlapRecords     int `yaml:"overlap_records"`
	HandoverTimeoutSec int `yaml:"handover_timeout_sec"`
	ReadTimeoutSec     int `yaml:"read_timeout_sec"`

	BoardDepth int      `yaml:"board_depth"`
	Topics     []string `yaml:"topics"`
	// RESTURL seeds the book from a depth snapshot on start and after a gap.
	// Only used for binance, whose diff stream carries no snapshots.
	RESTURL string `yaml:"rest_url"`

	DryRun  bool `yaml:"dry_run"`
	Archive bool `yaml:"archive"`
	Publish bool `yaml:"publish"`
	Wallet  struct {
		Home    decimal.Decimal `yaml:"home"`
		Foreign decimal.Decimal `yaml:"foreign"`
	} `yaml:"wallet"`

	// Strategy runs against the simulator; requires dry_run.
	Strategy struct {
		Name  string          `yaml:"name"`
		Short int             `yaml:"short"`
		Long  int             `yaml:"long"`
		Size  decimal.Decimal `yaml:"size"`
	} `yaml:"strategy"`
}

// Key identifies the market across the process: exchange/category/symbol.
func (m *Market) Key() string {
	return m.Exchange + "/" + m.Category + "/" + m.Symbol
}

func (m *Market) PingInterval() time.Duration {
	return time.Duration(m.PingIntervalSec) * time.Second
}

func (m *Market) SwitchInterval() time.Duration {
	return time.Duration(m.SwitchIntervalSec) * time.Second
}

func (m *Market) HandoverTimeout() time.Duration {
	return time.Duration(m.HandoverTimeoutSec) * time.Second
}

func (m *Market) ReadTimeout() time.Duration {
	return time.Duration(m.ReadTimeoutSec) * time.Second
}

// RetryInterval returns the configured initial and max reconnect delays.
func (c *Config) RetryInterval() (initial, maxInterval time.Duration) {
	return time.Duration(c.Retry.InitialIntervalMS) * time.Millisecond,
		time.Duration(c.Retry.MaxIntervalMS) * time.Millisecond
}

func (c *Config) RetryMaxElapsed() time.Duration {
	return time.Duration(c.Retry.MaxElapsedSec) * time.Second
}

func (c *Config) BookTTL() time.Duration {
	return time.Duration(c.Publish.BookTTLSec) * time.Second
}

func (c *Config) BookInterval() time.Duration {
	return time.Duration(c.Publish.BookIntervalMS) * time.Millisecond
}

// Publishing reports whether any market sends data to a sink.
func (c *Config) Publishing() bool {
	for i := range c.Markets {
		if c.Markets[i].Publish {
			return true
		}
	}
	return false
}

// LoadConfig reads and parses the configuration file. A .env file in the
// working directory, if any, is loaded into the environment first.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML, fills defaults, applies environment overrides
// and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	// Deployment paths and levels come from the environment
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "rbot"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Storage.DBRoot == "" {
		c.Storage.DBRoot = "data"
	}
	if c.Engine.InboxSize <= 0 {
		c.Engine.InboxSize = 4096
	}
	if c.Engine.DedupWindow <= 0 {
		c.Engine.DedupWindow = 4096
	}
	if c.Publish.BookTTLSec <= 0 {
		c.Publish.BookTTLSec = 300
	}
	if c.Publish.BookIntervalMS <= 0 {
		c.Publish.BookIntervalMS = 500
	}
	if c.Publish.BookDepth <= 0 {
		c.Publish.BookDepth = 20
	}
	if c.Publish.KafkaTopic == "" {
		c.Publish.KafkaTopic = "rbot.trades"
	}
	for i := range c.Markets {
		m := &c.Markets[i]
		if m.Category == "" {
			m.Category = "spot"
		}
		if m.HandoverTimeoutSec == 0 {
			m.HandoverTimeoutSec = 30
		}
		if m.ReadTimeoutSec == 0 {
			m.ReadTimeoutSec = 60
		}
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !validLogLevels[c.Logging.Level] {
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("invalid log level: %s", c.Logging.Level)}
	}
	if len(c.Markets) == 0 {
		return &domain.ConfigError{Field: "markets", Err: errors.New("at least one market is required")}
	}

	if c.Publish.RedisURL != "" && !hasPrefix(c.Publish.RedisURL, "redis://") && !hasPrefix(c.Publish.RedisURL, "rediss://") {
		return &domain.ConfigError{Field: "publish.redis_url", Err: fmt.Errorf("invalid Redis URL: %s", c.Publish.RedisURL)}
	}
	for _, b := range c.Publish.KafkaBrokers {
		if b == "" {
			return &domain.ConfigError{Field: "publish.kafka_brokers", Err: errors.New("empty broker address")}
		}
	}
	if c.Publishing() && c.Publish.RedisURL == "" && len(c.Publish.KafkaBrokers) == 0 {
		return &domain.ConfigError{Field: "publish", Err: errors.New("a market publishes but no sink is configured")}
	}

	seen := make(map[string]bool, len(c.Markets))
	for i := range c.Markets {
		m := &c.Markets[i]
		field := func(name string) string { return fmt.Sprintf("markets[%d].%s", i, name) }

		switch m.Exchange {
		case "bybit", "binance", "bitget":
		default:
			return &domain.ConfigError{Field: field("exchange"), Err: fmt.Errorf("unsupported exchange: %q", m.Exchange)}
		}
		if m.Symbol == "" {
			return &domain.ConfigError{Field: field("symbol"), Err: errors.New("symbol is required")}
		}
		if !hasPrefix(m.WSURL, "ws://") && !hasPrefix(m.WSURL, "wss://") {
			return &domain.ConfigError{Field: field("ws_url"), Err: fmt.Errorf("invalid WS URL: %s", m.WSURL)}
		}
		if m.PingIntervalSec < 0 || m.SwitchIntervalSec < 0 || m.HandoverTimeoutSec < 0 || m.ReadTimeoutSec < 0 {
			return &domain.ConfigError{Field: field("intervals"), Err: errors.New("intervals must not be negative")}
		}
		if m.SwitchIntervalSec > 0 && m.PingIntervalSec > m.SwitchIntervalSec {
			return &domain.ConfigError{Field: field("ping_interval_sec"), Err: errors.New("ping interval exceeds switch interval")}
		}
		if m.OverlapRecords < 0 || m.BoardDepth < 0 {
			return &domain.ConfigError{Field: field("overlap_records"), Err: errors.New("counts must not be negative")}
		}
		if m.RESTURL != "" && !hasPrefix(m.RESTURL, "http://") && !hasPrefix(m.RESTURL, "https://") {
			return &domain.ConfigError{Field: field("rest_url"), Err: fmt.Errorf("invalid REST URL: %s", m.RESTURL)}
		}
		if m.Wallet.Home.IsNegative() || m.Wallet.Foreign.IsNegative() {
			return &domain.ConfigError{Field: field("wallet"), Err: errors.New("wallet balances must not be negative")}
		}
		switch m.Strategy.Name {
		case "":
		case "sma_cross":
			if !m.DryRun {
				return &domain.ConfigError{Field: field("strategy"), Err: errors.New("strategies require dry_run")}
			}
			if m.Strategy.Short <= 0 || m.Strategy.Short >= m.Strategy.Long || !m.Strategy.Size.IsPositive() {
				return &domain.ConfigError{Field: field("strategy"), Err: errors.New("sma_cross needs 0 < short < long and a positive size")}
			}
		default:
			return &domain.ConfigError{Field: field("strategy"), Err: fmt.Errorf("unknown strategy %q", m.Strategy.Name)}
		}
		if seen[m.Key()] {
			return &domain.ConfigError{Field: field("symbol"), Err: fmt.Errorf("duplicate market %s", m.Key())}
		}
		seen[m.Key()] = true
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}
