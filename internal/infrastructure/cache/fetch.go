package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options controls a single GetOrFetch call.
type Options struct {
	// TTL is the freshness window for a newly fetched value. Zero means
	// DefaultTTL.
	TTL time.Duration

	// ForceRefresh skips the fresh-hit path and always invokes the
	// fetcher. The stale fallback still applies if the fetch fails.
	ForceRefresh bool
}

// GetOrFetch returns the cached value under key when it is still fresh,
// otherwise invokes fetch and caches the result.
//
// When fetch fails and any cached entry exists, even an expired one, the
// stale value is returned with a warning instead of the error. The error
// propagates only when there is nothing to fall back to. Cache backend
// failures are treated the same as a miss: the fetcher still runs.
func GetOrFetch[T any](ctx context.Context, store Store, logger *zap.Logger, key string, opts Options, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	entry, err := store.Get(ctx, key)
	if err != nil {
		logger.Warn("cache read failed, fetching directly",
			zap.String("key", key),
			zap.Error(err))
		entry = nil
	}

	if entry != nil && entry.IsFresh(time.Now()) && !opts.ForceRefresh {
		var value T
		if err := json.Unmarshal(entry.Payload, &value); err == nil {
			return value, nil
		}
		// Undecodable payload, treat as a miss.
		logger.Warn("cache entry undecodable, refetching", zap.String("key", key))
	}

	value, fetchErr := fetch(ctx)
	if fetchErr != nil {
		if entry != nil {
			var stale T
			if err := json.Unmarshal(entry.Payload, &stale); err == nil {
				logger.Warn("fetch failed, serving stale cache entry",
					zap.String("key", key),
					zap.Time("expired_at", entry.ExpiresAt),
					zap.Error(fetchErr))
				return stale, nil
			}
		}
		return zero, fetchErr
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("encode cache value for %s: %w", key, err)
	}
	if err := store.Set(ctx, key, payload, ttl); err != nil {
		logger.Warn("cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}

	return value, nil
}
