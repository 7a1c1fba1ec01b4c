package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ashare_sync/internal/app/di"
	"ashare_sync/internal/app/jobs"
	candle "ashare_sync/internal/feature/candles/domain/entity"
	instrumentsadapters "ashare_sync/internal/feature/instruments/adapters"
	supplyadapters "ashare_sync/internal/feature/supply/adapters"
	"ashare_sync/internal/platform/config"
	infradb "ashare_sync/internal/platform/db"
	"ashare_sync/internal/platform/logging"
	"ashare_sync/internal/platform/metrics"
	infraredis "ashare_sync/internal/platform/redis"
	"ashare_sync/internal/shared/marketclock"
	"ashare_sync/internal/shared/ratelimiter"
)

type options struct {
	configPath  string
	job         string
	intervals   string
	schedule    string
	metricsAddr string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "configs/config.yaml", "path to the YAML configuration")
	flag.StringVar(&opts.job, "job", jobs.JobAll, "job to run: universe|candles|supply|history|all")
	flag.StringVar(&opts.intervals, "interval", "", "comma-separated candle intervals (default: sync.intervals)")
	flag.StringVar(&opts.schedule, "schedule", "", "cron spec with seconds; run on schedule until interrupted")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "address of the prometheus endpoint while scheduled")
	flag.Parse()

	if err := run(opts); err != nil {
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return err
	}
	closer, err := logging.Install(cfg.Log)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() { _ = closer.Close() }()
	defer func() { _ = zap.L().Sync() }()

	intervals, err := parseIntervals(opts.intervals, cfg.Sync.Intervals)
	if err != nil {
		zap.L().Error("invalid -interval", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := infradb.Open(cfg.DB)
	if err != nil {
		zap.L().Error("failed to open database", zap.Error(err))
		return err
	}

	// 書き込み時にキャッシュを無効化するためにRedisへも接続
	var rdb *redisv9.Client
	if cfg.Redis.Addr != "" {
		if tmp, err := infraredis.NewRedisClient(ctx, cfg.Redis); err != nil {
			zap.L().Warn("Redis unavailable. Cached candles will expire on their own.", zap.Error(err))
		} else {
			rdb = tmp
			defer func() { _ = rdb.Close() }()
		}
	}

	m := metrics.New(cfg.Metrics.Namespace)
	var progressOut io.Writer
	if cfg.Sync.Progress {
		progressOut = os.Stderr
	}

	runner := jobs.NewRunner(jobs.Deps{
		Dial:        di.NewQuoteDialer(cfg.TDX),
		Snapshot:    instrumentsadapters.NewSnapshotCSV(cfg.Sync.UniverseFile),
		Symbols:     instrumentsadapters.NewSymbolRepository(db),
		Candles:     di.NewCandleRepository(db, rdb),
		Supply:      supplyadapters.NewSupplyRepository(db),
		Archive:     di.NewArchiveClient(cfg.Archive),
		Checksums:   supplyadapters.NewChecksumCSV(cfg.Archive.ChecksumFile),
		ArchiveDir:  cfg.Archive.Dir,
		RateLimiter: ratelimiter.NewRateLimiter(cfg.TDX.RateLimit, cfg.TDX.RateInterval),
		Recorder:    m,
		Progress:    progressOut,
	})

	schedule := opts.schedule
	if schedule == "" {
		schedule = cfg.Sync.Schedule
	}
	if schedule == "" {
		return runner.Run(ctx, opts.job, intervals)
	}

	metricsAddr := opts.metricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	return runScheduled(ctx, runner, m, schedule, metricsAddr, cfg.Metrics.Path, opts.job, intervals)
}

func runScheduled(ctx context.Context, runner *jobs.Runner, m *metrics.Metrics, spec, metricsAddr, metricsPath, job string, intervals []string) error {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(marketclock.CST),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(spec, func() {
		// 失敗はRunner内でログとメトリクスに記録済み
		_ = runner.Run(ctx, job, intervals)
	}); err != nil {
		zap.L().Error("invalid schedule", zap.String("schedule", spec), zap.Error(err))
		return err
	}

	if metricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, metricsAddr, metricsPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	c.Start()
	zap.L().Info("scheduled", zap.String("job", job), zap.String("schedule", spec))

	<-ctx.Done()
	zap.L().Info("stopping scheduler, waiting for the running job")
	<-c.Stop().Done()
	return nil
}

// parseIntervals validates a comma-separated -interval value, or returns the configured list.
func parseIntervals(flagValue string, configured []string) ([]string, error) {
	if strings.TrimSpace(flagValue) == "" {
		return configured, nil
	}
	var out []string
	for _, s := range strings.Split(flagValue, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := candle.KlineType(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
