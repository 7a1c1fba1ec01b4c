package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	calendar "ashare_sync/internal/feature/calendar/usecase"
	"ashare_sync/internal/feature/candles/domain/entity"
	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/shared/marketclock"
	"ashare_sync/internal/shared/progress"
	"ashare_sync/internal/shared/ratelimiter"
)

// BarPageSize is the number of bars requested per page.
const BarPageSize = 800

// ErrParse is returned when a bar timestamp cannot be normalized. The whole instrument is skipped.
var ErrParse = errors.New("parse bar")

// BarSource pages through an instrument's bars. Offset 0 is the most recent page; each page
// is ordered oldest first.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type BarSource interface {
	GetBars(ctx context.Context, klineType int, market instrument.Market, code string, offset, count int) ([]entity.RawBar, error)
}

// CandleStore is the write side of the time-series store.
type CandleStore interface {
	// Latest returns the newest stored candle of the series, or nil when the series is empty.
	Latest(ctx context.Context, symbol, interval string) (*entity.Candle, error)
	UpsertBatch(ctx context.Context, candles []entity.Candle) error
}

// TradingDayResolver returns the close of the most recent trading session.
type TradingDayResolver interface {
	RecentTradingDay(ctx context.Context, at time.Time, offline bool) (time.Time, error)
}

// Recorder receives per-instrument outcomes of batch jobs.
type Recorder interface {
	RecordInstrument(job, outcome string)
	AddRows(job string, n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordInstrument(string, string) {}

func (nopRecorder) AddRows(string, int) {}

// SyncReport summarizes a SyncAll run.
type SyncReport struct {
	Interval      string
	Total         int
	Succeeded     int
	Skipped       int // already up to date
	Failed        int
	Written       int
	FailedSymbols []string
}

// SyncUsecase incrementally copies candles from the quote server into the store.
type SyncUsecase struct {
	bars        BarSource
	store       CandleStore
	calendar    TradingDayResolver
	rateLimiter ratelimiter.RateLimiterInterface
	recorder    Recorder
	progressOut io.Writer
	now         func() time.Time
}

// NewSyncUsecase creates a SyncUsecase.
func NewSyncUsecase(bars BarSource, store CandleStore, calendar TradingDayResolver, rateLimiter ratelimiter.RateLimiterInterface) *SyncUsecase {
	return &SyncUsecase{
		bars:        bars,
		store:       store,
		calendar:    calendar,
		rateLimiter: rateLimiter,
		recorder:    nopRecorder{},
		now:         time.Now,
	}
}

// WithRecorder sets the metrics sink for SyncAll.
func (u *SyncUsecase) WithRecorder(r Recorder) *SyncUsecase {
	if r != nil {
		u.recorder = r
	}
	return u
}

// WithProgress renders a progress bar on w during SyncAll.
func (u *SyncUsecase) WithProgress(w io.Writer) *SyncUsecase {
	u.progressOut = w
	return u
}

// SyncOne brings one (instrument, interval) series up to date and returns the number of
// candles written. Running it again without new remote data writes nothing.
func (u *SyncUsecase) SyncOne(ctx context.Context, inst instrument.Instrument, interval string) (int, error) {
	klineType, err := entity.KlineType(interval)
	if err != nil {
		return 0, err
	}
	symbol := inst.Symbol()

	last := marketclock.HistoryStart
	latest, err := u.store.Latest(ctx, symbol, interval)
	if err != nil {
		return 0, fmt.Errorf("read latest %s %s: %w", symbol, interval, err)
	}
	if latest != nil {
		last = latest.Time
	}

	day, err := u.calendar.RecentTradingDay(ctx, time.Time{}, false)
	switch {
	case err == nil:
		if !last.Before(day) {
			zap.L().Debug("series already up to date",
				zap.String("symbol", symbol),
				zap.String("interval", interval),
				zap.Time("last", last),
			)
			return 0, nil
		}
	case errors.Is(err, calendar.ErrNoTradingDay):
		zap.L().Warn("no trading day resolved, syncing without short-circuit", zap.String("symbol", symbol))
	default:
		return 0, fmt.Errorf("resolve trading day: %w", err)
	}

	raw, err := u.fetchSince(ctx, klineType, inst, last)
	if err != nil {
		return 0, err
	}

	candles, err := normalize(inst, interval, raw, last)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	if err := u.store.UpsertBatch(ctx, candles); err != nil {
		return 0, fmt.Errorf("upsert %s %s: %w", symbol, interval, err)
	}

	zap.L().Debug("series synchronized",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("written", len(candles)),
		zap.Time("since", last),
	)
	return len(candles), nil
}

// fetchSince pages backwards until a page starts at or before last, or the history ends.
// Before the session close the still-forming bar at offset 0 is skipped.
func (u *SyncUsecase) fetchSince(ctx context.Context, klineType int, inst instrument.Instrument, last time.Time) ([]entity.RawBar, error) {
	pointer := 0
	if marketclock.BeforeSessionClose(u.now()) {
		pointer = 1
	}

	var out []entity.RawBar
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u.rateLimiter.WaitIfNeeded()
		page, err := u.bars.GetBars(ctx, klineType, inst.Market, inst.Code, pointer, BarPageSize)
		if err != nil {
			return nil, fmt.Errorf("get bars %s offset %d: %w", inst.Symbol(), pointer, err)
		}
		if len(page) == 0 {
			return out, nil
		}
		out = append(out, page...)
		pointer += len(page)

		first, err := marketclock.ParseWallClock(page[0].Datetime)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, inst.Symbol(), err)
		}
		if !first.After(last) {
			return out, nil
		}
	}
}

// normalize parses every bar, sorts ascending and keeps one candle per timestamp strictly after last.
func normalize(inst instrument.Instrument, interval string, raw []entity.RawBar, last time.Time) ([]entity.Candle, error) {
	type parsed struct {
		t   time.Time
		bar entity.RawBar
	}
	ps := make([]parsed, 0, len(raw))
	for _, b := range raw {
		t, err := marketclock.ParseWallClock(b.Datetime)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, inst.Symbol(), err)
		}
		ps = append(ps, parsed{t: t, bar: b})
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].t.Before(ps[j].t) })

	out := make([]entity.Candle, 0, len(ps))
	for _, p := range ps {
		if !p.t.After(last) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Time.Equal(p.t) {
			continue
		}
		out = append(out, entity.Candle{
			Symbol:   inst.Symbol(),
			Interval: interval,
			Code:     inst.Code,
			Exchange: inst.Market.String(),
			Time:     p.t,
			Open:     decimal.NewFromFloat(p.bar.Open),
			High:     decimal.NewFromFloat(p.bar.High),
			Low:      decimal.NewFromFloat(p.bar.Low),
			Close:    decimal.NewFromFloat(p.bar.Close),
			Volume:   int64(math.Round(p.bar.Volume)),
			Amount:   decimal.NewFromFloat(p.bar.Amount),
		})
	}
	return out, nil
}

// SyncAll synchronizes every instrument for one interval, one at a time. A failing
// instrument is logged and counted; the batch goes on. Cancellation stops the batch
// between instruments and is returned together with the partial report.
func (u *SyncUsecase) SyncAll(ctx context.Context, instruments []instrument.Instrument, interval string) (SyncReport, error) {
	report := SyncReport{Interval: interval, Total: len(instruments)}
	if _, err := entity.KlineType(interval); err != nil {
		return report, err
	}

	bar := progress.New(u.progressOut, len(instruments), fmt.Sprintf("sync %s candles", interval))
	defer func() { _ = bar.Finish() }()

	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := u.SyncOne(ctx, inst, interval)
		_ = bar.Add(1)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			report.FailedSymbols = append(report.FailedSymbols, inst.Symbol())
			u.recorder.RecordInstrument("candles", "failed")
			zap.L().Error("failed to sync candles",
				zap.String("symbol", inst.Symbol()),
				zap.String("interval", interval),
				zap.Error(err),
			)
		case n == 0:
			report.Skipped++
			u.recorder.RecordInstrument("candles", "skipped")
		default:
			report.Succeeded++
			report.Written += n
			u.recorder.RecordInstrument("candles", "synced")
			u.recorder.AddRows("candles", n)
		}
	}

	zap.L().Info("candle sync finished",
		zap.String("interval", interval),
		zap.Int("instruments", report.Total),
		zap.Int("synced", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("written", report.Written),
	)
	return report, nil
}
