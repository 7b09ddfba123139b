// Package cache provides a Redis-backed result store shared between service instances
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

const keyPrefix = "cropdoc:result:"

// Cache wraps a Redis client for classification result storage.
// It implements coordinator.Store.
type Cache struct {
	client *redis.Client
}

// New creates a new Cache instance connected to the specified Redis address.
// If addr is empty, defaults to localhost:6379. The connection is retried with
// Fibonacci backoff until ctx ends or the attempts run out.
func New(ctx context.Context, addr string) (*Cache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // No password by default
		DB:       0,  // Default DB
	})

	b := retry.WithMaxRetries(3, retry.NewFibonacci(100*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &Cache{client: client}, nil
}

// Set stores a result under its fingerprint with the specified TTL
func (c *Cache) Set(ctx context.Context, fingerprint string, result *model.Result, ttl time.Duration) error {
	if c.client == nil {
		return fmt.Errorf("cache client is nil")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", fingerprint, err)
	}

	if err := c.client.Set(ctx, keyPrefix+fingerprint, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set result %s: %w", fingerprint, err)
	}

	return nil
}

// Get retrieves a result by fingerprint. A missing key returns (nil, nil).
func (c *Cache) Get(ctx context.Context, fingerprint string) (*model.Result, error) {
	if c.client == nil {
		return nil, fmt.Errorf("cache client is nil")
	}

	data, err := c.client.Get(ctx, keyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Key does not exist
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result %s: %w", fingerprint, err)
	}

	var result model.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result %s: %w", fingerprint, err)
	}

	return &result, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
