// Package usecase implements share-supply synchronization and queries.
package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/shared/progress"
	"ashare_sync/internal/shared/ratelimiter"
)

// FinanceSource reads the current share capital of an instrument.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type FinanceSource interface {
	GetFinanceInfo(ctx context.Context, market instrument.Market, code string) (entity.FinanceInfo, error)
}

// SupplyStore persists supply records. Writing a record for an existing (symbol, as-of) replaces it.
type SupplyStore interface {
	WriteBatch(ctx context.Context, records []entity.SupplyRecord) error
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

// SupplyReport summarizes a SyncCurrentAll run.
type SupplyReport struct {
	Total         int
	Succeeded     int
	Failed        int
	FailedSymbols []string
}

// SupplyUsecase copies the current share supply of each instrument into the store.
type SupplyUsecase struct {
	source      FinanceSource
	store       SupplyStore
	calendar    TradingDayResolver
	rateLimiter ratelimiter.RateLimiterInterface
	recorder    Recorder
	progressOut io.Writer
}

// NewSupplyUsecase creates a SupplyUsecase.
func NewSupplyUsecase(source FinanceSource, store SupplyStore, calendar TradingDayResolver, rateLimiter ratelimiter.RateLimiterInterface) *SupplyUsecase {
	return &SupplyUsecase{
		source:      source,
		store:       store,
		calendar:    calendar,
		rateLimiter: rateLimiter,
		recorder:    nopRecorder{},
	}
}

// WithRecorder sets the metrics sink for SyncCurrentAll.
func (u *SupplyUsecase) WithRecorder(r Recorder) *SupplyUsecase {
	if r != nil {
		u.recorder = r
	}
	return u
}

// WithProgress renders a progress bar on w during SyncCurrentAll.
func (u *SupplyUsecase) WithProgress(w io.Writer) *SupplyUsecase {
	u.progressOut = w
	return u
}

// SyncCurrent writes one record tagged with the current trading day.
func (u *SupplyUsecase) SyncCurrent(ctx context.Context, inst instrument.Instrument) error {
	u.rateLimiter.WaitIfNeeded()
	info, err := u.source.GetFinanceInfo(ctx, inst.Market, inst.Code)
	if err != nil {
		return fmt.Errorf("get finance info %s: %w", inst.Symbol(), err)
	}

	day, err := u.calendar.RecentTradingDay(ctx, time.Time{}, false)
	if err != nil {
		return fmt.Errorf("resolve trading day: %w", err)
	}

	rec := entity.NewSupplyRecord(inst, info.TotalShares, info.CirculatingShares, day)
	if err := u.store.WriteBatch(ctx, []entity.SupplyRecord{rec}); err != nil {
		return fmt.Errorf("write supply %s: %w", inst.Symbol(), err)
	}
	return nil
}

// SyncCurrentAll runs SyncCurrent for every instrument. A failing instrument is logged and
// counted; cancellation stops the loop and is returned with the partial report.
func (u *SupplyUsecase) SyncCurrentAll(ctx context.Context, instruments []instrument.Instrument) (SupplyReport, error) {
	report := SupplyReport{Total: len(instruments)}

	bar := progress.New(u.progressOut, len(instruments), "sync current supply")
	defer func() { _ = bar.Finish() }()

	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := u.SyncCurrent(ctx, inst)
		_ = bar.Add(1)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			report.FailedSymbols = append(report.FailedSymbols, inst.Symbol())
			u.recorder.RecordInstrument("supply", "failed")
			zap.L().Error("failed to sync supply", zap.String("symbol", inst.Symbol()), zap.Error(err))
			continue
		}
		report.Succeeded++
		u.recorder.RecordInstrument("supply", "synced")
		u.recorder.AddRows("supply", 1)
	}

	zap.L().Info("supply sync finished",
		zap.Int("instruments", report.Total),
		zap.Int("synced", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
