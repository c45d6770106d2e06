package core

import (
	"time"
)

// NewBucket returns a full bucket for identity, stamped with now.
func (p Policy) NewBucket(identity string, now time.Time) Bucket {
	return Bucket{
		Identity:    identity,
		TokensCount: p.Capacity,
		LastRequest: UnixMilli(now),
	}
}

// Validate checks that the policy can drive a bucket.
func (p Policy) Validate() error {
	if p.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if p.RefillInterval < time.Millisecond {
		return ErrInvalidRefillInterval
	}
	return nil
}

// Refill restores the tokens earned since b.LastRequest.
// One token is earned per full RefillInterval. The refill only applies when
// at least one token was earned and the bucket is below capacity; in that
// case LastRequest moves to now. It returns the resulting bucket and the
// number of tokens actually added (0 means b is returned unchanged and the
// caller has nothing to persist).
func (p Policy) Refill(b Bucket, now time.Time) (Bucket, int64) {
	intervalMs := p.RefillInterval.Milliseconds()
	if intervalMs <= 0 {
		return b, 0
	}

	elapsed := UnixMilli(now) - b.LastRequest
	tokensToAdd := elapsed / intervalMs

	if tokensToAdd <= 0 || b.TokensCount >= p.Capacity {
		return b, 0
	}

	current := b.TokensCount
	if current < 0 {
		current = 0
	}
	newCount := min(p.Capacity, current+tokensToAdd)

	refilled := Bucket{
		Identity:    b.Identity,
		TokensCount: newCount,
		LastRequest: UnixMilli(now),
	}
	return refilled, newCount - b.TokensCount
}

// NextRefill returns when b earns its next token, or the zero time when b is
// already full.
func (p Policy) NextRefill(b Bucket) time.Time {
	if b.TokensCount >= p.Capacity {
		return time.Time{}
	}
	return time.UnixMilli(b.LastRequest).Add(p.RefillInterval)
}

// Consume decides what a finished call costs. Failures are charged one token;
// successes only refresh the activity timestamp, and only when the bucket
// held a token before the call.
func (p Policy) Consume(tokensBefore int64, o Outcome) Action {
	if o.Failed() {
		return ActionCharge
	}
	if tokensBefore > 0 {
		return ActionRefresh
	}
	return ActionNone
}
