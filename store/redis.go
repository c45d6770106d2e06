package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KanavDutta/errorfence/core"
)

// DefaultKeyPrefix is prepended to every identity to form the Redis key.
const DefaultKeyPrefix = "errorfence:"

// RedisClient is the subset of go-redis commands used by RedisStore.
// *redis.Client, *redis.ClusterClient and *redis.Ring all satisfy it.
type RedisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisStore provides Redis-backed storage for buckets.
// Each identity is one hash; decrements use HINCRBY so concurrent charges
// from any number of gate instances serialise inside Redis.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration // Idle expiry for bucket hashes, 0 keeps them forever
}

// Ensure RedisStore implements BucketStore interface
var _ BucketStore = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr      string        // Redis address (e.g., "localhost:6379")
	Password  string        // Redis password (empty for no auth)
	DB        int           // Redis database number
	KeyPrefix string        // Prefix for bucket keys (default: "errorfence:")
	TTL       time.Duration // Idle expiry for buckets (default: none)
}

// NewRedisStore creates a new Redis-backed store that owns its client
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisStoreWithClient(client, config.KeyPrefix, config.TTL)
}

// NewRedisStoreWithClient wraps an existing client, e.g. a cluster client
func NewRedisStoreWithClient(client RedisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Load retrieves the bucket for identity
func (s *RedisStore) Load(ctx context.Context, identity string) (core.Bucket, error) {
	if identity == "" {
		return core.Bucket{}, ErrInvalidIdentity
	}

	fields, err := s.client.HGetAll(ctx, s.key(identity)).Result()
	if err != nil {
		return core.Bucket{}, fmt.Errorf("%w: HGETALL %s: %v", ErrStoreUnavailable, core.IdentityLabel(identity), err)
	}
	if len(fields) == 0 {
		return core.Bucket{}, ErrNotFound
	}
	return parseBucket(identity, fields)
}

// Upsert stores both fields of b with a single HSET
func (s *RedisStore) Upsert(ctx context.Context, b core.Bucket) error {
	if b.Identity == "" {
		return ErrInvalidIdentity
	}

	key := s.key(b.Identity)
	err := s.client.HSet(ctx, key,
		FieldTokensCount, formatInt(b.TokensCount),
		FieldLastRequest, formatInt(b.LastRequest),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: HSET %s: %v", ErrStoreUnavailable, core.IdentityLabel(b.Identity), err)
	}
	return s.expire(ctx, b.Identity)
}

// DecrementAndGet runs HINCRBY -1 on the token count and returns the result
func (s *RedisStore) DecrementAndGet(ctx context.Context, identity string) (int64, error) {
	if identity == "" {
		return 0, ErrInvalidIdentity
	}

	remaining, err := s.client.HIncrBy(ctx, s.key(identity), FieldTokensCount, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: HINCRBY %s: %v", ErrStoreUnavailable, core.IdentityLabel(identity), err)
	}
	return remaining, nil
}

// SetTokens overwrites the token count for identity
func (s *RedisStore) SetTokens(ctx context.Context, identity string, tokens int64) error {
	return s.setField(ctx, identity, FieldTokensCount, tokens)
}

// Touch overwrites the lastRequest timestamp for identity
func (s *RedisStore) Touch(ctx context.Context, identity string, lastRequest int64) error {
	return s.setField(ctx, identity, FieldLastRequest, lastRequest)
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection if the client supports it
func (s *RedisStore) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *RedisStore) setField(ctx context.Context, identity, field string, v int64) error {
	if identity == "" {
		return ErrInvalidIdentity
	}

	if err := s.client.HSet(ctx, s.key(identity), field, formatInt(v)).Err(); err != nil {
		return fmt.Errorf("%w: HSET %s %s: %v", ErrStoreUnavailable, core.IdentityLabel(identity), field, err)
	}
	return s.expire(ctx, identity)
}

func (s *RedisStore) expire(ctx context.Context, identity string) error {
	if s.ttl <= 0 {
		return nil
	}
	if err := s.client.Expire(ctx, s.key(identity), s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: EXPIRE %s: %v", ErrStoreUnavailable, core.IdentityLabel(identity), err)
	}
	return nil
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + identity
}
