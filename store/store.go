// Package store holds the per-identity bucket storage used by the admission gate.
//
// Both implementations keep a bucket as a small hash with two decimal fields,
// tokensCount and lastRequest, so data written by one is readable by the other.
package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/KanavDutta/errorfence/core"
)

//go:generate mockgen -destination=mock_store.go -package=store github.com/KanavDutta/errorfence/store BucketStore

const (
	// FieldTokensCount is the hash field holding the remaining tokens.
	FieldTokensCount = "tokensCount"

	// FieldLastRequest is the hash field holding the last update, in epoch milliseconds.
	FieldLastRequest = "lastRequest"
)

var (
	// ErrNotFound is returned when a bucket was never written or its fields
	// cannot be parsed. Callers initialise the bucket in both cases.
	ErrNotFound = errors.New("bucket not found")

	// ErrStoreUnavailable is returned when the backing store cannot be reached
	ErrStoreUnavailable = errors.New("bucket store unavailable")

	// ErrInvalidIdentity is returned for an empty identity
	ErrInvalidIdentity = errors.New("identity cannot be empty")
)

// BucketStore defines the storage contract for buckets.
// Implementations must be safe for concurrent use.
type BucketStore interface {
	// Load reads the bucket for identity, or returns ErrNotFound.
	Load(ctx context.Context, identity string) (core.Bucket, error)

	// Upsert replaces both fields of b in a single write.
	Upsert(ctx context.Context, b core.Bucket) error

	// DecrementAndGet atomically removes one token and returns the new count.
	// The result may be negative under contention; the caller clamps it.
	DecrementAndGet(ctx context.Context, identity string) (int64, error)

	// SetTokens overwrites only the token count.
	SetTokens(ctx context.Context, identity string, tokens int64) error

	// Touch overwrites only the lastRequest timestamp.
	Touch(ctx context.Context, identity string, lastRequest int64) error
}

// parseBucket converts raw hash fields into a Bucket. Missing or non-numeric
// fields yield ErrNotFound.
func parseBucket(identity string, fields map[string]string) (core.Bucket, error) {
	rawTokens, ok := fields[FieldTokensCount]
	if !ok {
		return core.Bucket{}, ErrNotFound
	}
	rawLast, ok := fields[FieldLastRequest]
	if !ok {
		return core.Bucket{}, ErrNotFound
	}

	tokens, err := strconv.ParseInt(rawTokens, 10, 64)
	if err != nil {
		return core.Bucket{}, ErrNotFound
	}
	last, err := strconv.ParseInt(rawLast, 10, 64)
	if err != nil {
		return core.Bucket{}, ErrNotFound
	}

	return core.Bucket{
		Identity:    identity,
		TokensCount: tokens,
		LastRequest: last,
	}, nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
