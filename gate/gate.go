// Package gate implements the per-identity error budget around a gated call.
//
// A request is authenticated, its bucket loaded (or created full) and
// refilled, and it is then either throttled or admitted. Admitted calls are
// settled afterwards: failures spend one token, successes only refresh the
// activity timestamp.
package gate

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/store"
)

// ErrNilStore is returned by New when no store is given.
var ErrNilStore = errors.New("bucket store cannot be nil")

// Gate runs the admission state machine. It holds configuration only; all
// mutable state lives in the store.
type Gate struct {
	store    store.BucketStore
	policy   core.Policy
	extract  core.IdentityExtractor
	clock    clock.PassiveClock
	recorder Recorder
	failOpen bool
}

// Option configures a Gate.
type Option func(*Gate)

// WithPolicy sets capacity and refill interval.
func WithPolicy(p core.Policy) Option {
	return func(g *Gate) {
		g.policy = p
	}
}

// WithIdentityExtractor replaces the default bearer extractor.
func WithIdentityExtractor(e core.IdentityExtractor) Option {
	return func(g *Gate) {
		if e != nil {
			g.extract = e
		}
	}
}

// WithClock sets the time source, mainly for tests.
func WithClock(c clock.PassiveClock) Option {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithRecorder installs a metrics hook.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) {
		if r != nil {
			g.recorder = r
		}
	}
}

// WithFailOpen admits requests without charging when the store fails.
// The default is to reject them with Unavailable.
func WithFailOpen(failOpen bool) Option {
	return func(g *Gate) {
		g.failOpen = failOpen
	}
}

// New creates a Gate over s.
func New(s store.BucketStore, opts ...Option) (*Gate, error) {
	if s == nil {
		return nil, ErrNilStore
	}

	g := &Gate{
		store:    s,
		policy:   core.DefaultPolicy(),
		extract:  core.ExtractBearer(),
		clock:    clock.RealClock{},
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := g.policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return g, nil
}

// Policy returns the budget policy the gate enforces.
func (g *Gate) Policy() core.Policy {
	return g.policy
}

// Admit authenticates credential and decides whether the call may proceed.
//
// The refill step is a plain read-compute-write. Two concurrent requests for
// the same identity can both observe a stale lastRequest and both write the
// same refilled count, so a refill may be applied once per racing request
// rather than once overall. Charges are unaffected because they go through
// the store's atomic decrement.
func (g *Gate) Admit(ctx context.Context, credential string) Decision {
	identity, err := g.extract(credential)
	if err != nil {
		klog.V(2).Infof("errorfence: rejecting request: %v", err)
		return g.decide(Decision{State: Unauthenticated, Err: err})
	}

	label := core.IdentityLabel(identity)
	now := g.clock.Now()

	b, err := g.store.Load(ctx, identity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b = g.policy.NewBucket(identity, now)
		if err := g.store.Upsert(ctx, b); err != nil {
			return g.storeFault(identity, fmt.Errorf("initialise bucket: %w", err))
		}
	case err != nil:
		return g.storeFault(identity, fmt.Errorf("load bucket: %w", err))
	}

	refilled, added := g.policy.Refill(b, now)
	if added != 0 {
		if err := g.store.Upsert(ctx, refilled); err != nil {
			return g.storeFault(identity, fmt.Errorf("persist refill: %w", err))
		}
		g.recorder.RecordRefill(label, added)
		klog.V(2).Infof("errorfence: refilled %s by %d to %d", label, added, refilled.TokensCount)
		b = refilled
	}

	if b.TokensCount <= 0 {
		klog.V(2).Infof("errorfence: throttling %s", label)
		return g.decide(Decision{State: Throttled, Identity: identity, Bucket: b})
	}
	return g.decide(Decision{State: Admitted, Identity: identity, Bucket: b})
}

// Settle applies the cost of an admitted call. It is a no-op for any other
// decision and for calls let through by fail-open. Errors are returned for
// logging only; the downstream response has already been produced.
//
// The store writes ignore ctx cancellation: a caller that disconnects after
// the downstream answered is still charged.
func (g *Gate) Settle(ctx context.Context, d Decision, o core.Outcome) error {
	if d.State != Admitted || d.Bypassed() {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	label := core.IdentityLabel(d.Identity)
	now := core.UnixMilli(g.clock.Now())

	switch g.policy.Consume(d.Bucket.TokensCount, o) {
	case core.ActionCharge:
		remaining, err := g.store.DecrementAndGet(ctx, d.Identity)
		if err != nil {
			klog.Errorf("errorfence: charging %s: %v", label, err)
			return fmt.Errorf("charge bucket: %w", err)
		}
		if remaining < 0 {
			klog.Warningf("errorfence: bucket %s underflowed to %d, clamping to 0", label, remaining)
			g.recorder.RecordClamp(label)
			g.recorder.RecordCharge(label, 0)
			if err := g.store.SetTokens(ctx, d.Identity, 0); err != nil {
				klog.Errorf("errorfence: clamping %s: %v", label, err)
				return fmt.Errorf("clamp bucket: %w", err)
			}
			return nil
		}
		g.recorder.RecordCharge(label, remaining)
		if err := g.store.Touch(ctx, d.Identity, now); err != nil {
			klog.Errorf("errorfence: touching %s: %v", label, err)
			return fmt.Errorf("touch bucket: %w", err)
		}

	case core.ActionRefresh:
		if err := g.store.Touch(ctx, d.Identity, now); err != nil {
			klog.Errorf("errorfence: touching %s: %v", label, err)
			return fmt.Errorf("touch bucket: %w", err)
		}
	}
	return nil
}

// Do runs the whole state machine for req. When the request is not admitted
// the downstream is skipped, req.Halted is set and req.Status holds 401, 429
// or 503. Otherwise req.Status is the downstream status.
func (g *Gate) Do(ctx context.Context, req *Request, downstream Downstream) Decision {
	d := g.Admit(ctx, req.Credential)
	if d.State != Admitted {
		req.Halted = true
		req.Status = d.State.HTTPStatus()
		return d
	}

	o := downstream(ctx)
	req.Status = o.Status

	// Already logged; the response stands regardless.
	_ = g.Settle(ctx, d, o)
	return d
}

func (g *Gate) storeFault(identity string, err error) Decision {
	klog.Errorf("errorfence: bucket store failed for %s: %v", core.IdentityLabel(identity), err)
	if g.failOpen {
		return g.decide(Decision{State: Admitted, Identity: identity, Err: err})
	}
	return g.decide(Decision{State: Unavailable, Identity: identity, Err: err})
}

func (g *Gate) decide(d Decision) Decision {
	g.recorder.RecordDecision(core.IdentityLabel(d.Identity), d.State)
	return d
}
