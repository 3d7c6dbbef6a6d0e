// Package cache provides the TTL result cache that sits between the
// dashboard services and the upstream CRM. Entries outlive their TTL so
// that a failed upstream refresh can fall back to stale data instead of
// surfacing an error.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is the freshness window applied when a caller does not
// specify one.
const DefaultTTL = 300 * time.Second

// Entry is a cached payload together with its soft expiry. An entry past
// ExpiresAt is stale but still servable as a fallback.
type Entry struct {
	Payload   []byte
	ExpiresAt time.Time
}

// IsFresh reports whether the entry is still within its TTL.
func (e *Entry) IsFresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Store is a byte-level cache backend. Get returns nil when the key is
// absent; expired entries are returned as-is and freshness is the
// caller's concern.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
