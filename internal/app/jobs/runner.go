// Package jobs runs the batch synchronization jobs behind cmd/sync.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	calendarusecase "ashare_sync/internal/feature/calendar/usecase"
	candleusecase "ashare_sync/internal/feature/candles/usecase"
	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	instrumentusecase "ashare_sync/internal/feature/instruments/usecase"
	supplyusecase "ashare_sync/internal/feature/supply/usecase"
	"ashare_sync/internal/shared/ratelimiter"
)

// Job names accepted by Run.
const (
	JobUniverse = "universe"
	JobCandles  = "candles"
	JobSupply   = "supply"
	JobHistory  = "history"
	JobAll      = "all"
)

// ErrUnknownJob is returned by Run for a name that is not one of the Job constants.
var ErrUnknownJob = errors.New("unknown job")

// QuoteClient is everything the jobs ask of one quote-server connection.
type QuoteClient interface {
	instrumentusecase.SecurityLister
	candleusecase.BarSource
	calendarusecase.IndexBarSource
	supplyusecase.FinanceSource
	io.Closer
}

// Dialer opens a quote-server connection.
type Dialer func(ctx context.Context) (QuoteClient, error)

// CandleStore is the write side of the candle repository.
type CandleStore = candleusecase.CandleStore

// Recorder receives per-instrument outcomes and job runs.
type Recorder interface {
	candleusecase.Recorder
	ObserveRun(job string, start time.Time, err error)
}

// Deps are the stores and clients the jobs share across runs.
type Deps struct {
	Dial      Dialer
	Snapshot  instrumentusecase.SnapshotStore
	Symbols   instrumentusecase.SymbolWriter // optional
	Candles   CandleStore
	Supply    supplyusecase.SupplyStore
	Archive   supplyusecase.ArchiveClient
	Checksums supplyusecase.ChecksumStore
	// ArchiveDir receives downloaded archive files.
	ArchiveDir  string
	RateLimiter ratelimiter.RateLimiterInterface
	Recorder    Recorder  // optional
	Progress    io.Writer // optional
}

// Runner executes named jobs. It is safe to call Run again after it returns.
type Runner struct {
	deps Deps
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps}
}

// Run executes job. intervals selects the candle series for the candles and all jobs.
func (r *Runner) Run(ctx context.Context, job string, intervals []string) (err error) {
	start := time.Now()
	log := zap.L().With(zap.String("job", job))
	log.Info("job started", zap.Strings("intervals", intervals))
	defer func() {
		if r.deps.Recorder != nil {
			r.deps.Recorder.ObserveRun(job, start, err)
		}
		if err != nil {
			log.Error("job failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			return
		}
		log.Info("job finished", zap.Duration("elapsed", time.Since(start)))
	}()

	switch job {
	case JobUniverse:
		return r.withQuote(ctx, func(q QuoteClient) error {
			_, err := r.universe(q).Build(ctx)
			return err
		})
	case JobCandles:
		return r.withQuote(ctx, func(q QuoteClient) error {
			instruments, err := r.buildInstruments(ctx, q)
			if err != nil {
				return err
			}
			return r.syncCandles(ctx, q, instruments, intervals)
		})
	case JobSupply:
		return r.withQuote(ctx, func(q QuoteClient) error {
			instruments, err := r.buildInstruments(ctx, q)
			if err != nil {
				return err
			}
			return r.syncSupply(ctx, q, instruments)
		})
	case JobHistory:
		return r.syncHistory(ctx)
	case JobAll:
		return r.withQuote(ctx, func(q QuoteClient) error {
			instruments, err := r.buildInstruments(ctx, q)
			if err != nil {
				return err
			}
			if err := r.syncCandles(ctx, q, instruments, intervals); err != nil {
				return err
			}
			return r.syncSupply(ctx, q, instruments)
		})
	}
	return fmt.Errorf("%w: %q", ErrUnknownJob, job)
}

// withQuote brackets fn with one quote-server connection.
func (r *Runner) withQuote(ctx context.Context, fn func(q QuoteClient) error) error {
	q, err := r.deps.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect quote server: %w", err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			zap.L().Warn("failed to close quote client", zap.Error(err))
		}
	}()
	return fn(q)
}

func (r *Runner) universe(q QuoteClient) *instrumentusecase.UniverseUsecase {
	var lister instrumentusecase.SecurityLister
	if q != nil {
		lister = q
	}
	return instrumentusecase.NewUniverseUsecase(lister, r.deps.Snapshot, r.deps.Symbols)
}

// buildInstruments rebuilds the universe and falls back to the last snapshot when the
// remote list cannot be fetched.
func (r *Runner) buildInstruments(ctx context.Context, q QuoteClient) ([]instrument.Instrument, error) {
	uc := r.universe(q)
	instruments, err := uc.Build(ctx)
	if err == nil {
		return instruments, nil
	}
	zap.L().Warn("universe rebuild failed, using last snapshot", zap.Error(err))
	instruments, lerr := uc.Load(ctx)
	if lerr != nil || len(instruments) == 0 {
		return nil, errors.Join(err, lerr)
	}
	return instruments, nil
}

func (r *Runner) resolver(q QuoteClient) *calendarusecase.Resolver {
	return calendarusecase.NewResolver(q, calendarusecase.NewTradingDayCache(0, 0))
}

func (r *Runner) syncCandles(ctx context.Context, q QuoteClient, instruments []instrument.Instrument, intervals []string) error {
	if len(intervals) == 0 {
		return errors.New("no intervals to synchronize")
	}
	uc := candleusecase.NewSyncUsecase(q, r.deps.Candles, r.resolver(q), r.deps.RateLimiter).
		WithProgress(r.deps.Progress)
	if r.deps.Recorder != nil {
		uc = uc.WithRecorder(r.deps.Recorder)
	}
	for _, interval := range intervals {
		report, err := uc.SyncAll(ctx, instruments, interval)
		zap.L().Info("candles synchronized",
			zap.String("interval", interval),
			zap.Int("instruments", report.Total),
			zap.Int("failed", report.Failed),
			zap.Int("written", report.Written),
		)
		if err != nil {
			return fmt.Errorf("sync %s candles: %w", interval, err)
		}
	}
	return nil
}

func (r *Runner) syncSupply(ctx context.Context, q QuoteClient, instruments []instrument.Instrument) error {
	uc := supplyusecase.NewSupplyUsecase(q, r.deps.Supply, r.resolver(q), r.deps.RateLimiter).
		WithProgress(r.deps.Progress)
	if r.deps.Recorder != nil {
		uc = uc.WithRecorder(r.deps.Recorder)
	}
	report, err := uc.SyncCurrentAll(ctx, instruments)
	zap.L().Info("current supply synchronized",
		zap.Int("instruments", report.Total),
		zap.Int("failed", report.Failed),
	)
	return err
}

// syncHistory rebuilds the universe over a short-lived connection, released before the
// archive walk starts. When the quote server is unreachable the last snapshot is used.
func (r *Runner) syncHistory(ctx context.Context) error {
	var instruments []instrument.Instrument
	err := r.withQuote(ctx, func(q QuoteClient) error {
		var err error
		instruments, err = r.buildInstruments(ctx, q)
		return err
	})
	if err != nil {
		var lerr error
		instruments, lerr = r.universe(nil).Load(ctx)
		if lerr != nil || len(instruments) == 0 {
			return errors.Join(err, lerr)
		}
		zap.L().Warn("quote server unavailable, using last snapshot", zap.Error(err))
	}
	return r.importHistory(ctx, instruments)
}

func (r *Runner) importHistory(ctx context.Context, instruments []instrument.Instrument) error {
	uc := supplyusecase.NewHistoryUsecase(r.deps.Archive, r.deps.Checksums, r.deps.Supply, r.deps.ArchiveDir).
		WithProgress(r.deps.Progress)
	if r.deps.Recorder != nil {
		uc = uc.WithRecorder(r.deps.Recorder)
	}
	report, err := uc.SyncHistory(ctx, instruments)
	zap.L().Info("supply history synchronized",
		zap.Int("entries", report.Entries),
		zap.Int("imported", report.Imported),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", report.Failed),
		zap.Int("written", report.Written),
	)
	return err
}
