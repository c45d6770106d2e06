package gate

import (
	"context"
	"net/http"

	"github.com/KanavDutta/errorfence/core"
)

// State is where a request ended up in the admission state machine.
type State int

const (
	// Unauthenticated means no usable identity could be derived.
	Unauthenticated State = iota
	// Throttled means the identity has no tokens left.
	Throttled
	// Admitted means the downstream handler may run.
	Admitted
	// Unavailable means the bucket store failed and the gate fails closed.
	Unavailable
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Throttled:
		return "throttled"
	case Admitted:
		return "admitted"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HTTPStatus is the response status for a request halted in state s.
// Admitted has no status of its own and returns 0.
func (s State) HTTPStatus() int {
	switch s {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Throttled:
		return http.StatusTooManyRequests
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return 0
	}
}

// Decision is the result of Admit.
type Decision struct {
	State    State
	Identity string      // Empty when Unauthenticated
	Bucket   core.Bucket // Bucket after refill, as seen at admission time
	// Err carries the credential error for Unauthenticated and the store
	// error for Unavailable. An Admitted decision with a non-nil Err was let
	// through by fail-open and is never charged.
	Err error
}

// Bypassed reports whether the decision skipped the budget because of a store fault.
func (d Decision) Bypassed() bool {
	return d.State == Admitted && d.Err != nil
}

// Request is the transport-neutral view of one gated call.
type Request struct {
	Credential string // Raw Authorization value
	Status     int    // Set by Do when the request is halted, otherwise the downstream status
	Halted     bool   // True when the downstream handler was not invoked
}

// Downstream runs the gated work and reports its outcome.
type Downstream func(ctx context.Context) core.Outcome
