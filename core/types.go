package core

import "time"

const (
	// DefaultCapacity is the number of tokens a fresh bucket starts with.
	DefaultCapacity int64 = 10

	// DefaultRefillInterval is how long it takes to restore one token.
	DefaultRefillInterval = time.Hour
)

// Bucket is the error budget of a single identity.
type Bucket struct {
	Identity    string // Key the bucket is stored under
	TokensCount int64  // Remaining failures before the identity is throttled
	LastRequest int64  // Epoch milliseconds of the last timestamp update
}

// Policy defines the budget shape shared by every bucket.
type Policy struct {
	Capacity       int64         // Maximum tokens a bucket can hold
	RefillInterval time.Duration // Time needed to restore one token
}

// DefaultPolicy returns the reference policy: 10 tokens, one restored per hour.
func DefaultPolicy() Policy {
	return Policy{
		Capacity:       DefaultCapacity,
		RefillInterval: DefaultRefillInterval,
	}
}

// Outcome is what the downstream call produced.
type Outcome struct {
	Status int // Response status chosen by the downstream handler
}

// Failed reports whether the outcome is in the client or server error class.
func (o Outcome) Failed() bool {
	return o.Status >= 400
}

// Action is the bookkeeping a settled call requires.
type Action int

const (
	// ActionNone leaves the bucket untouched.
	ActionNone Action = iota
	// ActionCharge spends one token.
	ActionCharge
	// ActionRefresh moves lastRequest to now without changing the count.
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionCharge:
		return "charge"
	case ActionRefresh:
		return "refresh"
	default:
		return "none"
	}
}

// UnixMilli converts t to the epoch milliseconds stored in a Bucket.
func UnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}
