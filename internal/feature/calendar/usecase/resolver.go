// Package usecase resolves the most recent completed trading session of the A-share market.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	candle "ashare_sync/internal/feature/candles/domain/entity"
	"ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/shared/marketclock"
)

// ErrNoTradingDay is returned when the index history holds no session at or before the
// requested instant.
var ErrNoTradingDay = errors.New("no trading day found")

const (
	// IndexPageSize is the number of index bars requested per page.
	IndexPageSize = 800
	// ReferenceIndexCode is the SSE Composite Index, whose daily bars define the trading calendar.
	ReferenceIndexCode = "000001"
)

// IndexBarSource pages through index bars, newest page first.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type IndexBarSource interface {
	GetIndexBars(ctx context.Context, klineType int, market entity.Market, code string, offset, count int) ([]candle.RawBar, error)
}

// Resolver answers "which session closed most recently?" either from the index history
// (online, cached) or from the weekday heuristic (offline).
type Resolver struct {
	source IndexBarSource
	cache  *TradingDayCache
	now    func() time.Time
}

// NewResolver creates a Resolver. A nil cache disables caching.
func NewResolver(source IndexBarSource, cache *TradingDayCache) *Resolver {
	return &Resolver{source: source, cache: cache, now: time.Now}
}

// RecentTradingDay returns the close (15:00 UTC+8) of the latest trading session at or
// before at. A zero at means now.
//
// Online results are cached under "current" (zero at) or the date of at; offline results
// are computed every time.
func (r *Resolver) RecentTradingDay(ctx context.Context, at time.Time, offline bool) (time.Time, error) {
	key := CurrentKey
	if at.IsZero() {
		at = r.now()
	} else {
		key = at.In(marketclock.CST).Format(marketclock.DateLayout)
	}

	if offline {
		return OfflineRecentTradingDay(at), nil
	}
	if r.source == nil {
		return time.Time{}, errors.New("trading day resolver: no index source configured")
	}

	load := func(ctx context.Context) (time.Time, error) {
		return r.lookup(ctx, at)
	}
	if r.cache == nil {
		return load(ctx)
	}
	return r.cache.Get(ctx, key, load)
}

// lookup walks the reference index history backwards until a page contains a bar at or
// before at, and returns the latest such bar.
func (r *Resolver) lookup(ctx context.Context, at time.Time) (time.Time, error) {
	for offset := 0; ; offset += IndexPageSize {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		bars, err := r.source.GetIndexBars(ctx, candle.KlineTypeIndexDaily, entity.MarketSH, ReferenceIndexCode, offset, IndexPageSize)
		if err != nil {
			return time.Time{}, fmt.Errorf("get index bars offset %d: %w", offset, err)
		}
		if len(bars) == 0 {
			return time.Time{}, ErrNoTradingDay
		}

		var (
			latest time.Time
			found  bool
		)
		for _, b := range bars {
			t, err := marketclock.ParseWallClock(b.Datetime)
			if err != nil {
				return time.Time{}, err
			}
			if !t.After(at) && (!found || t.After(latest)) {
				latest, found = t, true
			}
		}
		if found {
			return latest, nil
		}
	}
}
