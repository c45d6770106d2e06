package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/KanavDutta/errorfence/core"
)

// ErrTokensOutOfRange is returned by Reset for a count outside [0, capacity].
var ErrTokensOutOfRange = errors.New("tokens count out of range")

// Snapshot describes a bucket without changing it.
type Snapshot struct {
	Stored     core.Bucket // As held by the store
	Effective  core.Bucket // As the next request would see it after refill
	Capacity   int64
	NextRefill time.Time // Zero when Effective is full
}

// Inspect loads identity's bucket and computes what the next request would
// observe. Nothing is written. Unknown identities yield store.ErrNotFound.
func (g *Gate) Inspect(ctx context.Context, identity string) (Snapshot, error) {
	b, err := g.store.Load(ctx, identity)
	if err != nil {
		return Snapshot{}, err
	}

	effective, _ := g.policy.Refill(b, g.clock.Now())
	return Snapshot{
		Stored:     b,
		Effective:  effective,
		Capacity:   g.policy.Capacity,
		NextRefill: g.policy.NextRefill(effective),
	}, nil
}

// Reset overwrites identity's bucket with tokens and a fresh timestamp.
func (g *Gate) Reset(ctx context.Context, identity string, tokens int64) (core.Bucket, error) {
	if tokens < 0 || tokens > g.policy.Capacity {
		return core.Bucket{}, fmt.Errorf("%w: %d not in [0, %d]", ErrTokensOutOfRange, tokens, g.policy.Capacity)
	}

	b := core.Bucket{
		Identity:    identity,
		TokensCount: tokens,
		LastRequest: core.UnixMilli(g.clock.Now()),
	}
	if err := g.store.Upsert(ctx, b); err != nil {
		return core.Bucket{}, err
	}
	klog.Infof("errorfence: bucket %s reset to %d tokens", core.IdentityLabel(identity), tokens)
	return b, nil
}

// RetryAfter is how long a throttled identity waits for its next token.
// It is 0 for any decision that is not Throttled.
func (g *Gate) RetryAfter(d Decision) time.Duration {
	if d.State != Throttled {
		return 0
	}
	wait := g.policy.NextRefill(d.Bucket).Sub(g.clock.Now())
	if wait < 0 {
		return 0
	}
	return wait
}
