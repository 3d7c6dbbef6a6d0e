package cache

import (
	"fmt"

	"github.com/crmdash/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreFactory creates cache stores based on configuration.
type StoreFactory struct {
	cacheConfig         config.CacheConfig
	redisConfig         config.RedisConfig
	logger              *zap.Logger
	allowMemoryFallback bool
}

// StoreFactoryOption is a functional option for configuring the factory.
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory.
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithMemoryFallback controls whether to fall back to the in-memory store
// when Redis is configured but unavailable. Default is true.
func WithMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowMemoryFallback = allow
	}
}

// NewStoreFactory creates a new factory.
func NewStoreFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		cacheConfig:         cacheCfg,
		redisConfig:         redisCfg,
		logger:              zap.NewNop(),
		allowMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateStore creates the store selected by the cache backend setting.
// With the redis backend it tries Redis first and, when fallback is
// allowed, degrades to the in-memory store with a warning. In-memory
// caches are per-process: separate instances will refresh independently.
func (f *StoreFactory) CreateStore() (Store, error) {
	if f.cacheConfig.Backend != config.CacheBackendRedis {
		f.logger.Info("using in-memory dashboard cache")
		return NewMemoryStore(WithMemoryLogger(f.logger)), nil
	}

	store, err := NewRedisStore(RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis dashboard cache",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port))
		return store, nil
	}

	if !f.allowMemoryFallback {
		return nil, fmt.Errorf("Redis cache backend required but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory dashboard cache. "+
		"Instances will refresh independently.",
		zap.Error(err),
	)
	return NewMemoryStore(WithMemoryLogger(f.logger)), nil
}
