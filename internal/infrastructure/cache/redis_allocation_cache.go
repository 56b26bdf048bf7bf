package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/redis/go-redis/v9"
)

// RedisAllocationCache implements AllocationCache using Redis.
// Suitable for distributed deployments where a retried request can land on
// any instance and must still receive its original number back.
type RedisAllocationCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisAllocationCache creates a new Redis-based allocation cache
func NewRedisAllocationCache(cfg RedisConfig) (*RedisAllocationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisAllocationCache{
		client:    client,
		keyPrefix: "numbering:allocation:",
	}, nil
}

// NewRedisAllocationCacheWithClient creates a cache with an existing Redis
// client. Useful for testing or when sharing a client across components.
func NewRedisAllocationCacheWithClient(client *redis.Client, keyPrefix string) *RedisAllocationCache {
	if keyPrefix == "" {
		keyPrefix = "numbering:allocation:"
	}
	return &RedisAllocationCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the cached allocation for the key, if present
func (c *RedisAllocationCache) Get(ctx context.Context, key string) (*numbering.Allocation, bool, error) {
	payload, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read allocation: %w", err)
	}

	var allocation numbering.Allocation
	if err := json.Unmarshal(payload, &allocation); err != nil {
		return nil, false, fmt.Errorf("failed to decode allocation: %w", err)
	}
	return &allocation, true, nil
}

// Put stores an allocation under the key with a TTL. SetNX keeps the first
// issued allocation authoritative if two retries race.
func (c *RedisAllocationCache) Put(ctx context.Context, key string, allocation *numbering.Allocation, ttl time.Duration) error {
	payload, err := json.Marshal(allocation)
	if err != nil {
		return fmt.Errorf("failed to encode allocation: %w", err)
	}

	if err := c.client.SetNX(ctx, c.keyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store allocation: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisAllocationCache) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisAllocationCache) GetClient() *redis.Client {
	return c.client
}

// Ensure RedisAllocationCache implements AllocationCache
var _ numbering.AllocationCache = (*RedisAllocationCache)(nil)
