// Package redis provides an optional read-aside cache for broker mapping
// lookups. The order-routing path hits GetMapping on every order, so hot
// mappings are kept in Redis with a TTL; SQLite stays the source of
// truth and every cache failure degrades silently to a store read.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"symbolsyncv1/internal/model"
)

const (
	keyPrefix  = "symbolsync:mapping:"
	defaultTTL = time.Hour

	// SCAN batch size for invalidation sweeps.
	scanCount = 500
)

// CacheConfig configures the Redis mapping cache.
type CacheConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // zero means defaultTTL
}

// Cache implements model.MappingCache on Redis.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New creates a mapping cache and pings the server.
func New(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Cache{client: client, ttl: ttl}, nil
}

func mappingKey(broker, exchange, symbol string) string {
	return keyPrefix + broker + ":" + exchange + ":" + symbol
}

// GetMapping returns a cached mapping and whether it was present. Any
// Redis or decode error counts as a miss.
func (c *Cache) GetMapping(ctx context.Context, broker, symbol, exchange string) (*model.MappingLookup, bool) {
	data, err := c.client.Get(ctx, mappingKey(broker, exchange, symbol)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			slog.Debug("mapping cache read failed", "broker", broker, "symbol", symbol, "err", err)
		}
		return nil, false
	}

	var m model.MappingLookup
	if err := json.Unmarshal(data, &m); err != nil {
		// A corrupt entry is dropped so the next lookup repopulates it.
		c.client.Del(ctx, mappingKey(broker, exchange, symbol))
		return nil, false
	}
	return &m, true
}

// SetMapping caches one mapping with the configured TTL. Errors are
// logged and ignored.
func (c *Cache) SetMapping(ctx context.Context, m *model.MappingLookup) {
	if m == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	key := mappingKey(m.BrokerName, m.Exchange, m.Symbol)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Debug("mapping cache write failed", "key", key, "err", err)
	}
}

// InvalidateBroker removes every cached mapping for one broker. Called
// after a sync so stale tokens never outlive a refresh. Uses SCAN rather
// than KEYS to stay friendly to a shared Redis.
func (c *Cache) InvalidateBroker(ctx context.Context, broker string) {
	pattern := keyPrefix + broker + ":*"
	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			slog.Warn("mapping cache invalidation failed", "broker", broker, "err", err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("mapping cache delete failed", "broker", broker, "err", err)
				return
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if removed > 0 {
		slog.Info("mapping cache invalidated", "broker", broker, "keys", removed)
	}
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
