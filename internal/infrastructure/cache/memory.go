package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = 30 * time.Second

	// defaultStaleFactor stretches the retention window past the soft TTL
	// so expired entries stay available for the stale fallback.
	defaultStaleFactor = 12
)

// MemoryStore implements Store with an in-process map. Entries are kept
// past their TTL for staleFactor times the TTL; a background goroutine
// drops them only once that retention window ends.
type MemoryStore struct {
	entries     sync.Map // map[string]*memoryEntry
	logger      *zap.Logger
	cleanupTick time.Duration
	staleFactor int
	stopCh      chan struct{}
	stopped     int32

	hits   int64
	misses int64
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
	evictAt   time.Time
}

// MemoryStoreOption is a functional option for configuring the store.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryLogger sets the logger for the store.
func WithMemoryLogger(logger *zap.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithCleanupInterval overrides how often expired entries are swept.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupTick = interval
	}
}

// WithStaleFactor overrides how long expired entries are retained, as a
// multiple of their TTL.
func WithStaleFactor(factor int) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.staleFactor = factor
	}
}

// NewMemoryStore creates an in-memory store and starts its cleanup
// goroutine. Call Close to stop it.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		logger:      zap.NewNop(),
		cleanupTick: defaultCleanupInterval,
		staleFactor: defaultStaleFactor,
		stopCh:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Get returns the entry under key, fresh or stale, or nil when absent.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	value, ok := s.entries.Load(key)
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		return nil, nil
	}

	entry := value.(*memoryEntry)
	if time.Now().After(entry.evictAt) {
		s.entries.Delete(key)
		atomic.AddInt64(&s.misses, 1)
		return nil, nil
	}

	atomic.AddInt64(&s.hits, 1)
	return &Entry{Payload: entry.payload, ExpiresAt: entry.expiresAt}, nil
}

// Set stores payload under key with the given TTL. Zero TTL means
// DefaultTTL.
func (s *MemoryStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	s.entries.Store(key, &memoryEntry{
		payload:   payload,
		expiresAt: now.Add(ttl),
		evictAt:   now.Add(ttl * time.Duration(s.staleFactor)),
	})
	return nil
}

// Delete removes the entry under key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.entries.Delete(key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryStore) Close() error {
	if atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		close(s.stopCh)
	}
	return nil
}

// Stats returns hit and miss counters.
func (s *MemoryStore) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}

// Count returns the number of live entries, stale ones included.
func (s *MemoryStore) Count() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops entries whose stale retention window has ended.
func (s *MemoryStore) sweep() {
	now := time.Now()
	removed := 0

	s.entries.Range(func(key, value any) bool {
		if now.After(value.(*memoryEntry).evictAt) {
			s.entries.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		s.logger.Debug("swept expired cache entries", zap.Int("removed", removed))
	}
}

var _ Store = (*MemoryStore)(nil)
