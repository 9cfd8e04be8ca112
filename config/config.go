// Package config loads the daemon and tool configuration: a YAML file laid
// over struct defaults, then NOHLCV_* environment overrides, then
// validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NOHLCV_"

// Config holds all application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Market  MarketConfig  `yaml:"market"`
	Sync    SyncConfig    `yaml:"sync"`
	Chart   ChartConfig   `yaml:"chart"`
	HTTP    HTTPConfig    `yaml:"http"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

type StoreConfig struct {
	Path        string        `yaml:"path" default:"data/ohlcv.db" validate:"required"`
	Codec       string        `yaml:"codec" default:"zstd" validate:"oneof=none zstd lz4"`
	Level       int           `yaml:"level" default:"3" validate:"min=0,max=9"`
	ReadConns   int           `yaml:"read_conns" default:"4" validate:"min=1,max=64"`
	BusyTimeout time.Duration `yaml:"busy_timeout" default:"5s" validate:"gte=0"`
}

type MarketConfig struct {
	BaseURL     string        `yaml:"base_url" default:"https://api.binance.com" validate:"required,url"`
	Symbols     []string      `yaml:"symbols" default:"[\"BTCUSDT\"]" validate:"min=1,dive,required,alphanum"`
	PriceDigits int32         `yaml:"price_digits" default:"8" validate:"min=0,max=18"`
	Timeout     time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
}

type SyncConfig struct {
	RequestPause time.Duration `yaml:"request_pause" default:"250ms" validate:"gte=0"`
	PollInterval time.Duration `yaml:"poll_interval" default:"5m" validate:"gt=0"`
	MaxRetries   int           `yaml:"max_retries" default:"3" validate:"min=0"`
	BackoffBase  time.Duration `yaml:"backoff_base" default:"5s" validate:"gt=0"`
	BackoffMax   time.Duration `yaml:"backoff_max" default:"2m" validate:"gte=0"`
	Lookback     time.Duration `yaml:"lookback" default:"360h" validate:"gt=0"`
}

type ChartConfig struct {
	Symbol     string        `yaml:"symbol" default:"BTCUSDT" validate:"required,alphanum"`
	Timeframe  int           `yaml:"timeframe" default:"60" validate:"min=1,max=1440"`
	WindowSize int           `yaml:"window_size" default:"200" validate:"min=2"`
	RSIPeriod  int           `yaml:"rsi_period" default:"14" validate:"min=0"`
	Lookback   time.Duration `yaml:"lookback" default:"360h" validate:"gt=0"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" default:":9090" validate:"required"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"min=0"`
	LockTTL  time.Duration `yaml:"lock_ttl" default:"30s" validate:"gt=0"`
}

// Load builds the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
		"STORE_PATH":      &c.Store.Path,
		"STORE_CODEC":     &c.Store.Codec,
		"MARKET_BASE_URL": &c.Market.BaseURL,
		"CHART_SYMBOL":    &c.Chart.Symbol,
		"HTTP_ADDR":       &c.HTTP.Addr,
		"METRICS_ADDR":    &c.Metrics.Addr,
		"REDIS_ADDR":      &c.Redis.Addr,
		"REDIS_PASSWORD":  &c.Redis.Password,
	}
	for key, dst := range str {
		if v := getEnv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"STORE_LEVEL":     &c.Store.Level,
		"CHART_TIMEFRAME": &c.Chart.Timeframe,
		"REDIS_DB":        &c.Redis.DB,
	}
	for key, dst := range ints {
		if v := getEnv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	durs := map[string]*time.Duration{
		"SYNC_POLL_INTERVAL": &c.Sync.PollInterval,
		"SYNC_LOOKBACK":      &c.Sync.Lookback,
		"CHART_LOOKBACK":     &c.Chart.Lookback,
	}
	for key, dst := range durs {
		if v := getEnv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	if v := getEnv("MARKET_SYMBOLS"); v != "" {
		var syms []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				syms = append(syms, strings.ToUpper(s))
			}
		}
		c.Market.Symbols = syms
	}
	if v := getEnv("REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env %sREDIS_ENABLED: %w", EnvPrefix, err)
		}
		c.Redis.Enabled = b
	}
	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}
