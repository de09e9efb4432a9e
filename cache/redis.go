/*
Package cache provides the Redis-backed read cache for customer
listings.

PURPOSE:
  Customer list queries dominate the back-office read load, so their
  results are cached in Redis keyed by the full query shape. Every
  balance mutation invalidates the whole customers:list:* keyspace.

DEGRADED MODE:
  The cache is an optimization, never a dependency. A nil *Client is
  fully usable: every method degrades to a miss or a no-op, so the
  service runs without Redis configured and survives a Redis outage
  mid-flight (errors are swallowed after logging).

SEE ALSO:
  - loyalty/store.go: Invalidator contract
  - api/handlers.go: Read-through usage on the customer list
*/
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/loyalty-engine/loyalty"
	"github.com/warp/loyalty-engine/metrics"
)

// TTL bounds staleness for entries that survive a missed
// invalidation.
const listTTL = 10 * time.Minute

const listKeyPrefix = "customers:list:"

// Client wraps go-redis with nil-safe cache helpers.
type Client struct {
	rdb     *redis.Client
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

var _ loyalty.Invalidator = (*Client)(nil)

// New creates a Redis cache client from a redis:// URL.
// Returns (nil, nil) when the URL is empty: caching not configured.
func New(url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// ListKey builds the cache key for a customer list query. All query
// dimensions participate, and each is query-escaped so a ":" inside
// one dimension cannot make two distinct queries share a key.
func ListKey(opts loyalty.ListOptions) string {
	return fmt.Sprintf("%s%s:%s:%s", listKeyPrefix,
		url.QueryEscape(opts.Search),
		url.QueryEscape(opts.SortBy),
		url.QueryEscape(string(opts.Order)))
}

// GetCustomers returns the cached result for key, or (nil, false) on
// a miss or any Redis failure.
func (c *Client) GetCustomers(ctx context.Context, key string) ([]loyalty.Customer, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		c.Metrics.RecordCacheMiss()
		return nil, false
	}
	if err != nil {
		c.logf("cache read failed for %s: %v", key, err)
		c.Metrics.RecordCacheMiss()
		return nil, false
	}

	var customers []loyalty.Customer
	if err := json.Unmarshal([]byte(raw), &customers); err != nil {
		c.logf("cache entry corrupt at %s: %v", key, err)
		c.Metrics.RecordCacheMiss()
		return nil, false
	}
	c.Metrics.RecordCacheHit()
	return customers, true
}

// SetCustomers stores a list result under key. Failures are logged
// and dropped.
func (c *Client) SetCustomers(ctx context.Context, key string, customers []loyalty.Customer) {
	if c == nil || c.rdb == nil {
		return
	}

	raw, err := json.Marshal(customers)
	if err != nil {
		c.logf("cache marshal failed for %s: %v", key, err)
		return
	}
	if err := c.rdb.Set(ctx, key, raw, listTTL).Err(); err != nil {
		c.logf("cache write failed for %s: %v", key, err)
	}
}

// CustomersChanged drops every cached customer list. Called after any
// mutation that changes a customer row or balance. Failures are
// logged, never surfaced: the TTL bounds the resulting staleness.
func (c *Client) CustomersChanged(ctx context.Context) {
	if c == nil || c.rdb == nil {
		return
	}

	iter := c.rdb.Scan(ctx, 0, listKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logf("cache invalidation scan failed: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logf("cache invalidation failed: %v", err)
	}
}

// Health reports whether Redis is reachable. Nil clients are healthy:
// caching is simply off.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Client) logf(format string, args ...any) {
	if c == nil || c.Logger == nil {
		return
	}
	c.Logger.Printf(format, args...)
}
