// Package config loads the trust engine's runtime configuration from a YAML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

// Duration decodes YAML scalars like "15s" or "1m" into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the durable backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "memory" or "postgres"
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// RedisConfig enables the shared Redis cache tier.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig controls JWT bearer auth on mutating routes.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
}

// RateLimitConfig bounds request throughput per client.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// StreamConfig tunes score subscriptions.
type StreamConfig struct {
	Interval  Duration `yaml:"interval"`
	Heartbeat Duration `yaml:"heartbeat"`
}

// DelegationConfig tunes the delegation policy.
type DelegationConfig struct {
	MinDelegatorScore float64 `yaml:"min_delegator_score"` // 0-100 scale
}

// Config is the process configuration.
type Config struct {
	Server     ServerConfig         `yaml:"server"`
	Storage    StorageConfig        `yaml:"storage"`
	Redis      RedisConfig          `yaml:"redis"`
	Auth       AuthConfig           `yaml:"auth"`
	RateLimit  RateLimitConfig      `yaml:"rate_limit"`
	Stream     StreamConfig         `yaml:"stream"`
	Delegation DelegationConfig     `yaml:"delegation"`
	Logging    logger.LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file or overrides are
// present: in-memory storage on :8080 with text logging.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{Driver: "memory"},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Stream: StreamConfig{
			Interval:  Duration(10 * time.Second),
			Heartbeat: Duration(15 * time.Second),
		},
		Delegation: DelegationConfig{MinDelegatorScore: 80},
		Logging:    logger.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load reads the configuration file at path, if present, on top of the
// defaults, then applies environment overrides. A missing file is not an
// error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TRUST_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRUST_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("TRUST_DATABASE_URL"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("TRUST_REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := os.Getenv("TRUST_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("TRUST_JWT_SECRET"); v != "" {
		c.Auth.Enabled = true
		c.Auth.Secret = v
	}
	if v := os.Getenv("TRUST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRUST_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TRUST_RATE_LIMIT_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.RequestsPerSecond = n
		}
	}
	if v := os.Getenv("TRUST_MIN_DELEGATOR_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Delegation.MinDelegatorScore = f
		}
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage driver postgres requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth is enabled but no secret is configured")
	}
	if c.Delegation.MinDelegatorScore < 0 || c.Delegation.MinDelegatorScore > 100 {
		return fmt.Errorf("delegation min_delegator_score must be in [0,100]")
	}
	return nil
}
