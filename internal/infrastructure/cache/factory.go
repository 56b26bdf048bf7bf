package cache

import (
	"fmt"

	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// AllocationCacheFactory creates allocation caches based on configuration
type AllocationCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// AllocationCacheFactoryOption is a functional option for configuring the factory
type AllocationCacheFactoryOption func(*AllocationCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) AllocationCacheFactoryOption {
	return func(f *AllocationCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to an in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) AllocationCacheFactoryOption {
	return func(f *AllocationCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewAllocationCacheFactory creates a new factory
func NewAllocationCacheFactory(cfg config.RedisConfig, opts ...AllocationCacheFactoryOption) *AllocationCacheFactory {
	f := &AllocationCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-backed allocation cache
func (f *AllocationCacheFactory) CreateRedisCache() (numbering.AllocationCache, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	cache, err := NewRedisAllocationCache(redisCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis allocation cache: %w", err)
	}

	return cache, nil
}

// CreateInMemoryCache creates an in-memory allocation cache.
// WARNING: the cache does not share state across process instances; a
// retried request served by another instance consumes a fresh number.
func (f *AllocationCacheFactory) CreateInMemoryCache() numbering.AllocationCache {
	return NewInMemoryAllocationCache()
}

// CreateCache creates an allocation cache, preferring Redis and falling back
// to in-memory when allowed
func (f *AllocationCacheFactory) CreateCache() (numbering.AllocationCache, error) {
	cache, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis allocation cache")
		return cache, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for idempotent allocation but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory allocation cache. "+
		"Retried requests served by another instance will consume fresh numbers.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
