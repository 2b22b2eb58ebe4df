// Package pricecache shares price snapshots between subscribers watching the
// same pair. Snapshots live in Redis for a short TTL; concurrent misses for
// one pair collapse into a single upstream request.
package pricecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"pairwatch/internal/config"
	"pairwatch/internal/fetcher"
	"pairwatch/internal/trade"
)

const (
	keyPrefix  = "pairwatch:price:"
	defaultTTL = 5 * time.Second
)

// Connect opens a Redis client and verifies it with PING. An empty address
// returns a nil client, which disables the shared cache.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// Cache wraps a PriceFetcher with a Redis read-through cache.
type Cache struct {
	upstream fetcher.PriceFetcher
	rdb      *redis.Client
	ttl      time.Duration
	group    singleflight.Group
	logger   zerolog.Logger
}

// New builds a Cache. A nil rdb keeps request collapsing but skips Redis.
func New(upstream fetcher.PriceFetcher, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		upstream: upstream,
		rdb:      rdb,
		ttl:      ttl,
		logger:   logger.With().Str("component", "price_cache").Logger(),
	}
}

// FetchPrice returns a cached snapshot when fresh, otherwise asks upstream.
// Redis failures degrade to a direct upstream fetch.
func (c *Cache) FetchPrice(ctx context.Context, pair string) (trade.PriceSnapshot, bool) {
	if snap, ok := c.load(ctx, pair); ok {
		return snap, true
	}

	v, _, _ := c.group.Do(pair, func() (any, error) {
		snap, ok := c.upstream.FetchPrice(ctx, pair)
		if ok {
			c.store(ctx, pair, snap)
		}
		return lookup{snap: snap, ok: ok}, nil
	})
	res := v.(lookup)
	return res.snap, res.ok
}

type lookup struct {
	snap trade.PriceSnapshot
	ok   bool
}

func (c *Cache) load(ctx context.Context, pair string) (trade.PriceSnapshot, bool) {
	if c.rdb == nil {
		return trade.PriceSnapshot{}, false
	}

	raw, err := c.rdb.Get(ctx, keyPrefix+pair).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("pair", pair).Msg("redis get failed")
		}
		return trade.PriceSnapshot{}, false
	}

	var snap trade.PriceSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.Warn().Err(err).Str("pair", pair).Msg("discarding malformed cached snapshot")
		return trade.PriceSnapshot{}, false
	}
	return snap, true
}

func (c *Cache) store(ctx context.Context, pair string, snap trade.PriceSnapshot) {
	if c.rdb == nil {
		return
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn().Err(err).Str("pair", pair).Msg("marshal snapshot failed")
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+pair, raw, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("pair", pair).Msg("redis set failed")
	}
}

var _ fetcher.PriceFetcher = (*Cache)(nil)
