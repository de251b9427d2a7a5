package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"PriceWorm/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Anchor is one recurring daily boundary in configuration form.
type Anchor struct {
	Name   string `yaml:"name"`
	Hour   int    `yaml:"hour"`
	Minute int    `yaml:"minute"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Strategy struct {
		Timezone       string        `yaml:"timezone" default:"America/New_York"`
		Symbols        []string      `yaml:"symbols"`
		Wormholes      []Anchor      `yaml:"wormholes"`
		Sessions       []Anchor      `yaml:"sessions"`
		Quarters       []Anchor      `yaml:"quarters"`
		Lookback       int           `yaml:"lookback" default:"3"`
		TickInterval   time.Duration `yaml:"tick_interval" default:"1m"`
		PollInterval   time.Duration `yaml:"poll_interval" default:"5m"`
		FetchTimeout   time.Duration `yaml:"fetch_timeout" default:"10s"`
		DivergencePct  float64       `yaml:"divergence_pct" default:"0.2"`
		BreakoutPct    float64       `yaml:"breakout_pct" default:"0.2"`
		RetestPct      float64       `yaml:"retest_pct" default:"0.3"`
		ProximityPct   float64       `yaml:"proximity_pct" default:"0.5"`
		RangeLookback  time.Duration `yaml:"range_lookback" default:"30m"`
		MinRangePoints int           `yaml:"min_range_points" default:"3"`
		SetupHorizon   time.Duration `yaml:"setup_horizon" default:"8h"`
		Retention      time.Duration `yaml:"retention" default:"24h"`
	} `yaml:"strategy"`
	Alerts struct {
		Offsets    []int    `yaml:"offsets"`
		Recipients []string `yaml:"recipients"`
	} `yaml:"alerts"`
	Binance struct {
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://stream.binance.com:9443/ws"`
		RestURL        string        `yaml:"rest_url" default:"https://api.binance.com"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"binance"`
	Kraken struct {
		Enabled bool   `yaml:"enabled"`
		RestURL string `yaml:"rest_url" default:"https://api.kraken.com"`
	} `yaml:"kraken"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"priceworm.ticks"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async" default:"true"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"priceworm"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"priceworm"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		QueueKey string        `yaml:"queue_key" default:"priceworm:notifications"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"5m"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file, applying struct
// defaults before validation.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.applyAnchorDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PRICEWORM_SYMBOLS"); v != "" {
		c.Strategy.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("PRICEWORM_PORT"), c.Server.Port)

	return c, nil
}

// applyAnchorDefaults fills the anchor sets with the strategy's standard
// times when the file leaves them out.
func (c *Config) applyAnchorDefaults() {
	if len(c.Strategy.Wormholes) == 0 {
		c.Strategy.Wormholes = []Anchor{
			{Name: "midnight", Hour: 0, Minute: 46},
			{Name: "premarket", Hour: 6, Minute: 43},
			{Name: "midday", Hour: 11, Minute: 57},
			{Name: "afterhours", Hour: 17, Minute: 32},
		}
	}
	if len(c.Strategy.Sessions) == 0 {
		c.Strategy.Sessions = []Anchor{
			{Name: "asia", Hour: 20, Minute: 0},
			{Name: "london", Hour: 2, Minute: 0},
			{Name: "ny_am", Hour: 9, Minute: 30},
			{Name: "ny_lunch", Hour: 12, Minute: 0},
			{Name: "ny_pm", Hour: 13, Minute: 30},
		}
	}
	if len(c.Strategy.Quarters) == 0 {
		c.Strategy.Quarters = []Anchor{
			{Name: "q1", Hour: 4, Minute: 43},
			{Name: "q2", Hour: 10, Minute: 43},
			{Name: "q3", Hour: 16, Minute: 43},
			{Name: "q4", Hour: 22, Minute: 43},
		}
	}
	if len(c.Alerts.Offsets) == 0 {
		c.Alerts.Offsets = []int{1, 5, 15, 30}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("strategy.symbols cannot be empty")
	}
	if _, err := time.LoadLocation(c.Strategy.Timezone); err != nil {
		return fmt.Errorf("strategy.timezone %q: %w", c.Strategy.Timezone, err)
	}
	if c.Strategy.TickInterval < time.Second {
		return fmt.Errorf("strategy.tick_interval must be at least 1s")
	}
	for _, set := range [][]Anchor{c.Strategy.Wormholes, c.Strategy.Sessions, c.Strategy.Quarters} {
		for _, a := range set {
			if err := validateAnchor(a); err != nil {
				return err
			}
		}
	}
	for _, m := range c.Alerts.Offsets {
		if m <= 0 {
			return fmt.Errorf("alerts.offsets must be positive, got %d", m)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}

func validateAnchor(a Anchor) error {
	if a.Name == "" {
		return fmt.Errorf("anchor name is required")
	}
	if a.Hour < 0 || a.Hour > 23 {
		return fmt.Errorf("anchor %q: hour %d out of range", a.Name, a.Hour)
	}
	if a.Minute < 0 || a.Minute > 59 {
		return fmt.Errorf("anchor %q: minute %d out of range", a.Name, a.Minute)
	}
	return nil
}
