// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"ashare_sync/internal/app/jobs"
	candleadapters "ashare_sync/internal/feature/candles/adapters"
	"ashare_sync/internal/platform/cache"
	"ashare_sync/internal/platform/config"
	"ashare_sync/internal/platform/externalapi/tdx"
	"ashare_sync/internal/platform/externalapi/tdxfin"
	infrahttp "ashare_sync/internal/platform/http"
)

// NewQuoteDialer returns a dialer that opens one quote-server connection per call.
func NewQuoteDialer(cfg config.TDXConfig) jobs.Dialer {
	hosts := append([]string(nil), cfg.Hosts...)
	return func(ctx context.Context) (jobs.QuoteClient, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := tdx.Dial(hosts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// NewArchiveClient creates the financial archive client with its own HTTP client.
func NewArchiveClient(cfg config.ArchiveConfig) *tdxfin.ArchiveClient {
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	return tdxfin.NewArchiveClient(cfg.BaseURL, httpClient)
}

// NewCandleRepository wraps the gorm candle repository with the Redis read cache.
// A nil rdb yields a pass-through decorator.
func NewCandleRepository(db *gorm.DB, rdb *redis.Client) *cache.CachingCandleRepository {
	return cache.NewCachingCandleRepository(rdb, 0, candleadapters.NewCandleRepository(db), "candles")
}
