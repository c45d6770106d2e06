// Package errorfence throttles callers that keep producing failed requests.
//
// Every identity (by default the bearer token of the Authorization header)
// owns a bucket of tokens. A request is admitted while the bucket holds at
// least one token. Only failed responses, those with a status of 400 or
// above, spend a token; successful ones are free. Tokens come back one per
// refill interval, up to the bucket capacity.
//
// # Quick Start
//
//	fence, err := errorfence.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fence.Close()
//
//	http.Handle("/path", fence.Middleware(yourHandler))
//
// Halted requests get a JSON body of the form {"error": "..."}:
//   - 401 Unauthorized or Invalid token format when the credential is unusable
//   - 429 Too Many Requests when the budget is exhausted, with Retry-After
//   - 503 Service Unavailable when the store fails and fail_open is off
//
// # Configuration
//
//	fence, err := errorfence.New(errorfence.WithConfigFile("errorfence.yaml"))
//
// Example YAML configuration:
//
//	capacity: 10
//	refill_interval: "1h"
//	identity_extractor: "bearer"
//	fail_open: false
//	store:
//	  backend: "redis"
//	  redis:
//	    addr: "localhost:6379"
//	    key_prefix: "errorfence:"
//	    ttl: "24h"
//
// # Storage
//
// The in-memory store suits a single instance. The Redis store shares one
// budget across every instance pointing at the same server; charges use
// HINCRBY so concurrent failures are never lost.
//
// # Metrics
//
// Pass metrics.NewMetrics() or metrics.NewPrometheus(reg) with WithRecorder
// to observe decisions, charges, clamps and refills.
package errorfence
