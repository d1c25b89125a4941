// Package cache provides an optional Redis-backed read-through cache for
// result snapshots. Cache failures degrade to misses; the cache is never on
// the correctness path.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adlens/adlens/pkg/aggregate"
)

// Config configures the Redis result cache.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all result keys
	Prefix string

	// TTL is the time-to-live for cached results
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(address string) Config {
	return Config{
		Address: address,
		Prefix:  "adlens:results:",
		TTL:     5 * time.Minute,
		Timeout: 2 * time.Second,
	}
}

// ResultCache caches materialized result snapshots keyed by job ID.
type ResultCache struct {
	cfg    Config
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*ResultCache, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "adlens:results:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &ResultCache{cfg: cfg, client: client}, nil
}

func (c *ResultCache) key(jobID string) string {
	return c.cfg.Prefix + jobID
}

// Get returns the cached snapshot for a job, or (nil, false) on a miss.
// Connection and decode failures count as misses.
func (c *ResultCache) Get(ctx context.Context, jobID string) (*aggregate.Result, bool) {
	data, err := c.client.Get(ctx, c.key(jobID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[cache] get %s: %v", jobID, err)
		}
		return nil, false
	}

	var res aggregate.Result
	if err := json.Unmarshal(data, &res); err != nil {
		log.Printf("[cache] decode %s: %v", jobID, err)
		return nil, false
	}
	return &res, true
}

// Set stores a snapshot with the configured TTL. Failures are logged and
// swallowed.
func (c *ResultCache) Set(ctx context.Context, jobID string, res *aggregate.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		log.Printf("[cache] encode %s: %v", jobID, err)
		return
	}
	if err := c.client.Set(ctx, c.key(jobID), data, c.cfg.TTL).Err(); err != nil {
		log.Printf("[cache] set %s: %v", jobID, err)
	}
}

// Invalidate drops a cached snapshot.
func (c *ResultCache) Invalidate(ctx context.Context, jobID string) {
	if err := c.client.Del(ctx, c.key(jobID)).Err(); err != nil {
		log.Printf("[cache] invalidate %s: %v", jobID, err)
	}
}

// Close releases the client.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
