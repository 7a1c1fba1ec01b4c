package db

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	candleadapters "ashare_sync/internal/feature/candles/adapters"
	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	supplyadapters "ashare_sync/internal/feature/supply/adapters"
	"ashare_sync/internal/platform/config"
)

// retryInterval は接続リトライの間隔です。
var retryInterval = 3 * time.Second

// Opener はDSNからgorm.DBを開く関数です。テストで差し替え可能です。
type Opener func(dsn string) (*gorm.DB, error)

// BuildDSN はPostgreSQL用のURL形式DSNを生成します。cfg.DSNが設定されている場合はそれを優先します。
func BuildDSN(cfg config.DBConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// OpenPostgres はpgxでDSNを解析し、database/sql互換の接続をgormに渡します。
func OpenPostgres(dsn string) (*gorm.DB, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	sqlDB := stdlib.OpenDB(*connCfg)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
}

// OpenSQLite はファイルまたはインメモリのSQLiteを開きます。
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	// SQLiteは単一ライターのため接続を1本に制限する
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
}

// ConnectWithRetry は接続に成功するかtimeoutを超えるまでリトライします。
func ConnectWithRetry(dsn string, timeout time.Duration, open Opener) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := open(dsn)
		if err == nil {
			return db, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("DB connect failed after %s: %w", timeout, err)
		}
		zap.L().Warn("DB connect failed, retrying", zap.Error(err), zap.Duration("interval", retryInterval))
		time.Sleep(retryInterval)
	}
}

// Open は設定に従ってデータベースへ接続し、必要であればマイグレーションを実行します。
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	var open Opener
	switch cfg.Driver {
	case "sqlite":
		open = OpenSQLite
	case "postgres":
		open = OpenPostgres
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	dsn := cfg.DSN
	if cfg.Driver == "postgres" {
		dsn = BuildDSN(cfg)
	}
	db, err := ConnectWithRetry(dsn, cfg.ConnectTimeout, open)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 && cfg.Driver == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	zap.L().Info("database connected", zap.String("driver", cfg.Driver))
	return db, nil
}

// Migrate は全テーブルを作成・更新します。
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migrate: nil db")
	}
	if err := db.AutoMigrate(
		&candleadapters.CandleModel{},
		&supplyadapters.SupplyModel{},
		&instrument.Symbol{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
