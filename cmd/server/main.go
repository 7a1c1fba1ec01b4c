package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ashare_sync/internal/app/di"
	"ashare_sync/internal/app/router"
	calendarhandler "ashare_sync/internal/feature/calendar/transport/handler"
	calendarusecase "ashare_sync/internal/feature/calendar/usecase"
	candleshandler "ashare_sync/internal/feature/candles/transport/handler"
	candlesusecase "ashare_sync/internal/feature/candles/usecase"
	instrumentsadapters "ashare_sync/internal/feature/instruments/adapters"
	instrumentshandler "ashare_sync/internal/feature/instruments/transport/handler"
	instrumentsusecase "ashare_sync/internal/feature/instruments/usecase"
	supplyadapters "ashare_sync/internal/feature/supply/adapters"
	supplyhandler "ashare_sync/internal/feature/supply/transport/handler"
	supplyusecase "ashare_sync/internal/feature/supply/usecase"
	"ashare_sync/internal/platform/config"
	infradb "ashare_sync/internal/platform/db"
	"ashare_sync/internal/platform/externalapi/tdx"
	platformhandler "ashare_sync/internal/platform/http/handler"
	"ashare_sync/internal/platform/logging"
	infraredis "ashare_sync/internal/platform/redis"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// ロガー初期化前のため標準エラーに出力
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	closer, err := logging.Install(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := infradb.Open(cfg.DB)
	if err != nil {
		zap.L().Fatal("failed to open database", zap.Error(err))
	}

	// Redis
	var rdb *redisv9.Client
	if cfg.Redis.Addr != "" {
		if tmp, err := infraredis.NewRedisClient(ctx, cfg.Redis); err != nil {
			zap.L().Warn("Redis unavailable. Running without cache.", zap.Error(err))
		} else {
			rdb = tmp
			defer func() {
				if err := rdb.Close(); err != nil {
					zap.L().Error("failed to close Redis client", zap.Error(err))
				}
			}()
		}
	}

	// 取引日の判定に使う相場サーバー接続（失敗時はオフライン判定のみ）
	var indexSource calendarusecase.IndexBarSource
	if quote, err := tdx.Dial(cfg.TDX.Hosts); err != nil {
		zap.L().Warn("quote server unavailable. Only offline trading-day lookups will succeed.", zap.Error(err))
	} else {
		indexSource = quote
		defer func() { _ = quote.Close() }()
	}

	// Repository
	symbolRepo := instrumentsadapters.NewSymbolRepository(db)
	candleRepo := di.NewCandleRepository(db, rdb)
	supplyRepo := supplyadapters.NewSupplyRepository(db)

	// Usecase
	symbolUC := instrumentsusecase.NewSymbolUsecase(symbolRepo)
	candlesUC := candlesusecase.NewCandlesUsecase(candleRepo)
	supplyUC := supplyusecase.NewQueryUsecase(supplyRepo)
	resolver := calendarusecase.NewResolver(indexSource, calendarusecase.NewTradingDayCache(0, 0))

	// Handler
	checks := []platformhandler.Check{{
		Name: "db",
		Probe: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if rdb != nil {
		checks = append(checks, platformhandler.Check{
			Name:  "redis",
			Probe: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	// ルータ生成
	r := router.NewRouter(router.Handlers{
		Health:   platformhandler.NewHealth(checks...),
		Symbols:  instrumentshandler.NewSymbolHandler(symbolUC),
		Candles:  candleshandler.NewCandlesHandler(candlesUC),
		Supply:   supplyhandler.NewSupplyHandler(supplyUC),
		Calendar: calendarhandler.NewCalendarHandler(resolver),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("read API listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server failed", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	zap.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("graceful shutdown failed", zap.Error(err))
	}
}
