package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/KanavDutta/errorfence/core"
)

// MemoryStore provides thread-safe in-memory storage for buckets.
// It mimics a Redis hash per identity, including HINCRBY semantics on
// missing or unparseable fields, and suits single-instance deployments and tests.
type MemoryStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
}

// Ensure MemoryStore implements BucketStore interface
var _ BucketStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes: make(map[string]map[string]string),
	}
}

// Load retrieves the bucket for identity
func (s *MemoryStore) Load(_ context.Context, identity string) (core.Bucket, error) {
	if identity == "" {
		return core.Bucket{}, ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.hashes[identity]
	if !ok {
		return core.Bucket{}, ErrNotFound
	}
	return parseBucket(identity, fields)
}

// Upsert stores both fields of b
func (s *MemoryStore) Upsert(_ context.Context, b core.Bucket) error {
	if b.Identity == "" {
		return ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.hashLocked(b.Identity)
	fields[FieldTokensCount] = formatInt(b.TokensCount)
	fields[FieldLastRequest] = formatInt(b.LastRequest)
	return nil
}

// DecrementAndGet removes one token under the store lock and returns the new count
func (s *MemoryStore) DecrementAndGet(_ context.Context, identity string) (int64, error) {
	if identity == "" {
		return 0, ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fields := s.hashLocked(identity)

	var current int64
	if raw, ok := fields[FieldTokensCount]; ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			// Same failure Redis reports for HINCRBY on a non-integer field
			return 0, fmt.Errorf("hash value is not an integer: %q", raw)
		}
		current = v
	}

	current--
	fields[FieldTokensCount] = formatInt(current)
	return current, nil
}

// SetTokens overwrites the token count for identity
func (s *MemoryStore) SetTokens(_ context.Context, identity string, tokens int64) error {
	return s.setField(identity, FieldTokensCount, tokens)
}

// Touch overwrites the lastRequest timestamp for identity
func (s *MemoryStore) Touch(_ context.Context, identity string, lastRequest int64) error {
	return s.setField(identity, FieldLastRequest, lastRequest)
}

// SetRaw writes an arbitrary field value. Tests use it to simulate corrupt data.
func (s *MemoryStore) SetRaw(identity, field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashLocked(identity)[field] = value
}

// Count returns the number of identities held by the store
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes)
}

// Clear removes every bucket
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = make(map[string]map[string]string)
}

func (s *MemoryStore) setField(identity, field string, v int64) error {
	if identity == "" {
		return ErrInvalidIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashLocked(identity)[field] = formatInt(v)
	return nil
}

// hashLocked returns the hash for identity, creating it if needed.
// MUST be called with s.mu locked.
func (s *MemoryStore) hashLocked(identity string) map[string]string {
	fields, ok := s.hashes[identity]
	if !ok {
		fields = make(map[string]string, 2)
		s.hashes[identity] = fields
	}
	return fields
}
