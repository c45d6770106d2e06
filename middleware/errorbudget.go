// Package middleware binds the admission gate to net/http.
package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/KanavDutta/errorfence/core"
	"github.com/KanavDutta/errorfence/gate"
)

// Response header names
const (
	HeaderLimit = "X-ErrorBudget-Limit"

	// HeaderRemaining is the token count when the request was admitted, before
	// it was settled. Headers go out before the downstream status is known, so
	// a failing response still shows the count it was admitted with.
	HeaderRemaining = "X-ErrorBudget-Remaining"

	HeaderRetryAfter = "Retry-After"
)

// Error bodies written for halted requests
const (
	MsgUnauthorized       = "Unauthorized"
	MsgInvalidTokenFormat = "Invalid token format"
	MsgTooManyRequests    = "Too Many Requests"
	MsgServiceUnavailable = "Service Unavailable"
)

// ErrorBudget provides HTTP middleware that charges failed responses
// against the caller's error budget
type ErrorBudget struct {
	gate *gate.Gate
}

// NewErrorBudget creates the middleware around g
func NewErrorBudget(g *gate.Gate) *ErrorBudget {
	return &ErrorBudget{gate: g}
}

// Middleware wraps an http.Handler with the error budget.
// The credential is read from the Authorization header. Requests that are
// not admitted get a JSON error and never reach next; admitted requests are
// charged one token when next responds with a status of 400 or above, even
// if the client has disconnected by then.
func (eb *ErrorBudget) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		d := eb.gate.Admit(ctx, r.Header.Get("Authorization"))
		if d.State != gate.Admitted {
			eb.reject(w, d)
			return
		}

		if !d.Bypassed() {
			w.Header().Set(HeaderLimit, strconv.FormatInt(eb.gate.Policy().Capacity, 10))
			w.Header().Set(HeaderRemaining, strconv.FormatInt(d.Bucket.TokensCount, 10))
		}

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		// The gate logs store errors; the response already stands.
		_ = eb.gate.Settle(ctx, d, core.Outcome{Status: sw.Status()})
	})
}

func (eb *ErrorBudget) reject(w http.ResponseWriter, d gate.Decision) {
	status := d.State.HTTPStatus()

	var msg string
	switch d.State {
	case gate.Unauthenticated:
		msg = MsgUnauthorized
		if errors.Is(d.Err, core.ErrMalformedCredential) {
			msg = MsgInvalidTokenFormat
		}
	case gate.Throttled:
		msg = MsgTooManyRequests
		w.Header().Set(HeaderLimit, strconv.FormatInt(eb.gate.Policy().Capacity, 10))
		w.Header().Set(HeaderRemaining, "0")
		if wait := eb.gate.RetryAfter(d); wait > 0 {
			w.Header().Set(HeaderRetryAfter, strconv.FormatInt(int64(math.Ceil(wait.Seconds())), 10))
		}
	default:
		msg = MsgServiceUnavailable
	}

	WriteError(w, status, msg)
}

// WriteError writes {"error": msg} with the given status
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusWriter remembers the status the wrapped handler chose
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the response status, 200 if the handler never set one
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
