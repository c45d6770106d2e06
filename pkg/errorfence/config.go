package errorfence

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KanavDutta/errorfence/core"
)

// Store backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the error budget configuration.
type Config struct {
	// Capacity is the number of failures an identity may have before it is throttled
	Capacity int64 `yaml:"capacity"`

	// RefillInterval is how long it takes to restore one token
	// Format: "1h", "30m", "90s"
	RefillInterval string `yaml:"refill_interval"`

	// IdentityExtractor selects how the Authorization value maps to an identity
	// Examples: "bearer", "raw"
	IdentityExtractor string `yaml:"identity_extractor,omitempty"`

	// FailOpen admits requests without charging while the store is down
	FailOpen bool `yaml:"fail_open,omitempty"`

	// Store selects and configures the bucket store
	Store StoreConfig `yaml:"store"`

	// AdminToken guards the bucket inspect and reset routes of the server.
	// Empty disables them.
	AdminToken string `yaml:"admin_token,omitempty"`
}

// StoreConfig selects the bucket store.
type StoreConfig struct {
	// Backend is "memory" or "redis"
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis bucket store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`

	// TTL expires idle buckets, which is the same as recreating them full
	// Format: "24h", "0" to disable
	TTL string `yaml:"ttl,omitempty"`
}

// NewConfig creates a new Config with the reference defaults:
// 10 tokens, one restored per hour, bearer identities, in-memory store.
func NewConfig() *Config {
	return &Config{
		Capacity:          core.DefaultCapacity,
		RefillInterval:    "1h",
		IdentityExtractor: "bearer",
		Store: StoreConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "errorfence:",
				TTL:       "0",
			},
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
// Fields missing from the file keep their NewConfig defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}

	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}

	if _, err := core.ParseIdentityExtractor(c.IdentityExtractor); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: redis addr is required", ErrInvalidConfig)
		}
		if _, err := c.Store.Redis.TTLDuration(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownBackend, c.Store.Backend)
	}

	return nil
}

// Policy converts the capacity and refill interval into a core.Policy.
func (c *Config) Policy() (core.Policy, error) {
	interval, err := time.ParseDuration(c.RefillInterval)
	if err != nil {
		return core.Policy{}, fmt.Errorf("%w: refill_interval %q: %v", ErrInvalidConfig, c.RefillInterval, err)
	}

	p := core.Policy{
		Capacity:       c.Capacity,
		RefillInterval: interval,
	}
	if err := p.Validate(); err != nil {
		return core.Policy{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return p, nil
}

// TTLDuration parses TTL. Empty and "0" both disable expiry.
func (r RedisConfig) TTLDuration() (time.Duration, error) {
	if r.TTL == "" || r.TTL == "0" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0, fmt.Errorf("%w: redis ttl %q: %v", ErrInvalidConfig, r.TTL, err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("%w: redis ttl cannot be negative", ErrInvalidConfig)
	}
	return ttl, nil
}
