// Package cache provides caching implementations for repository interfaces.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ashare_sync/internal/feature/candles/domain/entity"
	"ashare_sync/internal/feature/candles/usecase"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultNamespace = "candles"
	scanBatch        = 200
)

// CandleRepository is the full candle store: the read side used by the API and the write
// side used by the synchronizer.
type CandleRepository interface {
	usecase.CandleRepository
	usecase.CandleStore
}

// CachingCandleRepository serves Find from Redis when it can. Writes always reach the
// inner store and drop every cached window of the series they touch.
type CachingCandleRepository struct {
	inner     CandleRepository
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	now       func() time.Time
}

var _ CandleRepository = (*CachingCandleRepository)(nil)

// NewCachingCandleRepository wraps inner. A nil rdb disables caching entirely.
// A non-positive ttl means 5 minutes and an empty namespace means "candles".
func NewCachingCandleRepository(rdb *redis.Client, ttl time.Duration, inner CandleRepository, namespace string) *CachingCandleRepository {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &CachingCandleRepository{inner: inner, rdb: rdb, ttl: ttl, namespace: namespace, now: time.Now}
}

// Find returns the newest outputsize candles of a series.
func (c *CachingCandleRepository) Find(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	if c.rdb == nil {
		return c.inner.Find(ctx, symbol, interval, outputsize)
	}

	key := c.seriesKey(symbol, interval) + strconv.Itoa(outputsize)
	if out, ok := c.lookup(ctx, key); ok {
		return out, nil
	}

	out, err := c.inner.Find(ctx, symbol, interval, outputsize)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.expiry()).Err(); err != nil {
			zap.L().Debug("cache store failed", zap.String("key", key), zap.Error(err))
		}
	}
	return out, nil
}

// lookup reads a cached window. Entries that no longer decode are removed.
func (c *CachingCandleRepository) lookup(ctx context.Context, key string) ([]entity.Candle, bool) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Debug("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var out []entity.Candle
	if len(b) > 0 && json.Unmarshal(b, &out) == nil {
		return out, true
	}
	_ = c.rdb.Del(ctx, key).Err()
	return nil, false
}

// Latest always reads the store; the synchronizer must never see a cached position.
func (c *CachingCandleRepository) Latest(ctx context.Context, symbol, interval string) (*entity.Candle, error) {
	return c.inner.Latest(ctx, symbol, interval)
}

// UpsertBatch writes through and invalidates each touched series once.
func (c *CachingCandleRepository) UpsertBatch(ctx context.Context, candles []entity.Candle) error {
	if err := c.inner.UpsertBatch(ctx, candles); err != nil {
		return err
	}
	if c.rdb == nil {
		return nil
	}

	done := make(map[string]bool, 1)
	for _, cd := range candles {
		prefix := c.seriesKey(cd.Symbol, cd.Interval)
		if done[prefix] {
			continue
		}
		done[prefix] = true
		if err := c.invalidate(ctx, prefix); err != nil {
			zap.L().Warn("cache invalidation failed", zap.String("prefix", prefix), zap.Error(err))
		}
	}
	return nil
}

// invalidate removes every key under prefix.
func (c *CachingCandleRepository) invalidate(ctx context.Context, prefix string) error {
	var keys []string
	it := c.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for it.Next(ctx) {
		keys = append(keys, it.Val())
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// expiry caps the ttl at the next session close, after which the daily sync writes new bars.
func (c *CachingCandleRepository) expiry() time.Duration {
	return min(c.ttl, TimeUntilNextSessionClose(c.now()))
}

// seriesKey is "<namespace>:<symbol>:<interval>:"; the window size follows it.
func (c *CachingCandleRepository) seriesKey(symbol, interval string) string {
	return strings.Join([]string{c.namespace, safe(symbol), safe(interval), ""}, ":")
}

var keyEscaper = strings.NewReplacer(" ", "_", ":", "_")

// safe replaces the separator and whitespace so user input cannot forge another key.
func safe(s string) string {
	return keyEscaper.Replace(s)
}
