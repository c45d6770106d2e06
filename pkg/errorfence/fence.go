package errorfence

import (
	"fmt"
	"io"
	"net/http"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/gate"
	"github.com/KanavDutta/errorfence/metrics"
	"github.com/KanavDutta/errorfence/middleware"
	"github.com/KanavDutta/errorfence/store"
)

// Fence bundles a bucket store, an admission gate and its HTTP middleware.
type Fence struct {
	config    *Config
	store     store.BucketStore
	ownsStore bool
	extractor core.IdentityExtractor
	clock     clock.PassiveClock
	recorders []gate.Recorder

	gate       *gate.Gate
	middleware *middleware.ErrorBudget
}

// New creates a Fence with the given options.
// Without options it enforces 10 tokens per identity, one restored per hour,
// keyed by bearer token and held in memory.
//
// Example:
//
//	fence, err := errorfence.New(
//	    errorfence.WithDefaults(5, 30*time.Minute),
//	    errorfence.WithFailOpen(true),
//	)
func New(opts ...Option) (*Fence, error) {
	f := &Fence{
		config: NewConfig(),
		clock:  clock.RealClock{},
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	policy, err := f.config.Policy()
	if err != nil {
		return nil, err
	}

	if f.extractor == nil {
		extractor, err := core.ParseIdentityExtractor(f.config.IdentityExtractor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		f.extractor = extractor
	}

	if f.store == nil {
		s, err := newStore(f.config.Store)
		if err != nil {
			return nil, err
		}
		f.store = s
		f.ownsStore = true
	}

	gateOpts := []gate.Option{
		gate.WithPolicy(policy),
		gate.WithIdentityExtractor(f.extractor),
		gate.WithClock(f.clock),
		gate.WithFailOpen(f.config.FailOpen),
	}
	switch len(f.recorders) {
	case 0:
	case 1:
		gateOpts = append(gateOpts, gate.WithRecorder(f.recorders[0]))
	default:
		gateOpts = append(gateOpts, gate.WithRecorder(metrics.Tee(f.recorders)))
	}

	g, err := gate.New(f.store, gateOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	f.gate = g
	f.middleware = middleware.NewErrorBudget(g)

	klog.V(1).Infof("errorfence: capacity=%d refill_interval=%v backend=%s fail_open=%t",
		policy.Capacity, policy.RefillInterval, f.config.Store.Backend, f.config.FailOpen)
	return f, nil
}

func newStore(c StoreConfig) (store.BucketStore, error) {
	switch c.Backend {
	case BackendMemory, "":
		return store.NewMemoryStore(), nil
	case BackendRedis:
		ttl, err := c.Redis.TTLDuration()
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(store.RedisConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			KeyPrefix: c.Redis.KeyPrefix,
			TTL:       ttl,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownBackend, c.Backend)
	}
}

// Middleware returns an HTTP middleware that applies the error budget.
func (f *Fence) Middleware(next http.Handler) http.Handler {
	return f.middleware.Middleware(next)
}

// Gate returns the underlying admission gate.
func (f *Fence) Gate() *gate.Gate {
	return f.gate
}

// Store returns the bucket store.
func (f *Fence) Store() store.BucketStore {
	return f.store
}

// Config returns the effective configuration.
func (f *Fence) Config() Config {
	return *f.config
}

// Close releases the store if the fence created it.
func (f *Fence) Close() error {
	if !f.ownsStore {
		return nil
	}
	if c, ok := f.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
