package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis so multiple instances share one
// cache. The soft expiry travels inside the stored envelope; the Redis
// key TTL is stretched by the stale factor so expired entries remain
// available for the stale fallback until Redis evicts them.
type RedisStore struct {
	client      *redis.Client
	keyPrefix   string
	staleFactor int
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// redisEnvelope is the JSON document stored under each key.
type redisEnvelope struct {
	Payload     json.RawMessage `json:"payload"`
	ExpiresAtMs int64           `json:"expiresAtMs"`
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:      client,
		keyPrefix:   "dashboard:cache:",
		staleFactor: defaultStaleFactor,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. Useful for tests and
// for sharing a client across components.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "dashboard:cache:"
	}
	return &RedisStore{
		client:      client,
		keyPrefix:   keyPrefix,
		staleFactor: defaultStaleFactor,
	}
}

// Get returns the entry under key, fresh or stale, or nil when absent.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode cache envelope for %s: %w", key, err)
	}

	return &Entry{
		Payload:   env.Payload,
		ExpiresAt: time.UnixMilli(env.ExpiresAtMs),
	}, nil
}

// Set stores payload under key. The Redis TTL is ttl times the stale
// factor; the soft expiry inside the envelope is ttl.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	env := redisEnvelope{
		Payload:     payload,
		ExpiresAtMs: time.Now().Add(ttl).UnixMilli(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode cache envelope for %s: %w", key, err)
	}

	hardTTL := ttl * time.Duration(s.staleFactor)
	if err := s.client.Set(ctx, s.keyPrefix+key, raw, hardTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
