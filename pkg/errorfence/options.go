package errorfence

import (
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/gate"
	"github.com/KanavDutta/errorfence/store"
)

// Option is a functional option for configuring a Fence.
type Option func(*Fence) error

// WithStore sets a custom bucket store.
// If not provided, the store is built from the configuration.
func WithStore(s store.BucketStore) Option {
	return func(f *Fence) error {
		if s == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		f.store = s
		return nil
	}
}

// WithConfig sets the configuration for the fence.
func WithConfig(config *Config) Option {
	return func(f *Fence) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		copied := *config
		f.config = &copied
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(f *Fence) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		f.config = config
		return nil
	}
}

// WithDefaults sets capacity and refill interval, keeping the rest of the
// current configuration.
func WithDefaults(capacity int64, refillInterval time.Duration) Option {
	return func(f *Fence) error {
		p := core.Policy{Capacity: capacity, RefillInterval: refillInterval}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		f.config.Capacity = capacity
		f.config.RefillInterval = refillInterval.String()
		return nil
	}
}

// WithIdentityExtractor overrides the configured identity extractor.
func WithIdentityExtractor(extractor core.IdentityExtractor) Option {
	return func(f *Fence) error {
		if extractor == nil {
			return fmt.Errorf("%w: identity extractor cannot be nil", ErrInvalidConfig)
		}
		f.extractor = extractor
		return nil
	}
}

// WithClock sets the time source.
func WithClock(c clock.PassiveClock) Option {
	return func(f *Fence) error {
		if c == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		f.clock = c
		return nil
	}
}

// WithRecorder adds a metrics recorder. It may be given more than once.
func WithRecorder(r gate.Recorder) Option {
	return func(f *Fence) error {
		if r == nil {
			return fmt.Errorf("%w: recorder cannot be nil", ErrInvalidConfig)
		}
		f.recorders = append(f.recorders, r)
		return nil
	}
}

// WithFailOpen overrides the configured store-failure behaviour.
func WithFailOpen(failOpen bool) Option {
	return func(f *Fence) error {
		f.config.FailOpen = failOpen
		return nil
	}
}
