package adapters

import (
	"context"
	"testing"
	"time"

	"ashare_sync/internal/feature/candles/domain/entity"
	"ashare_sync/internal/shared/marketclock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB prepares an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	// every pooled connection would otherwise open its own empty :memory: database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(&CandleModel{})
	require.NoError(t, err, "failed to migrate table")

	return db
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func candle(symbol, interval string, tm time.Time, open string) entity.Candle {
	return entity.Candle{
		Symbol:   symbol,
		Interval: interval,
		Code:     symbol[:6],
		Exchange: symbol[7:],
		Time:     tm,
		Open:     d(open),
		High:     d(open).Add(d("1")),
		Low:      d(open).Sub(d("1")),
		Close:    d(open).Add(d("0.5")),
		Volume:   1000,
		Amount:   d("10500.25"),
	}
}

// seedCandle creates a test candle in the database for testing.
func seedCandle(t *testing.T, db *gorm.DB, symbol, interval string, tm time.Time) {
	t.Helper()

	m := toModel(candle(symbol, interval, tm, "10"))
	require.NoError(t, db.Create(&m).Error, "failed to seed candle")
}

func TestNewCandleRepository(t *testing.T) {
	db := setupTestDB(t)

	repo := NewCandleRepository(db)

	assert.NotNil(t, repo, "repository is nil")
	assert.NotNil(t, repo.db, "database connection is nil")
}

func TestCandleGorm_UpsertBatch(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2024, 1, 2, 15, 0, 0, 0, marketclock.CST)

	tests := []struct {
		name         string
		candles      []entity.Candle
		setupFunc    func(t *testing.T, db *gorm.DB)
		validateFunc func(t *testing.T, db *gorm.DB)
	}{
		{
			name:    "success: insert single candle",
			candles: []entity.Candle{candle("000001.SZ", "1d", baseTime, "9.10")},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(1), count, "candle count does not match")
			},
		},
		{
			name: "success: insert multiple candles",
			candles: []entity.Candle{
				candle("000001.SZ", "1d", baseTime, "9.10"),
				candle("000001.SZ", "1d", baseTime.AddDate(0, 0, 1), "9.20"),
			},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(2), count, "candle count does not match")
			},
		},
		{
			name:    "success: empty slice",
			candles: []entity.Candle{},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(0), count, "candle count should be 0")
			},
		},
		{
			name:    "success: upsert updates existing candle",
			candles: []entity.Candle{candle("000001.SZ", "1d", baseTime, "20.5")},
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "000001.SZ", "1d", baseTime)
			},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(1), count, "candle count should remain 1 after upsert")

				var m CandleModel
				require.NoError(t, db.First(&m).Error)
				assert.True(t, d("20.5").Equal(m.Open), "Open should be updated, got %s", m.Open)
				assert.True(t, d("21.5").Equal(m.High), "High should be updated, got %s", m.High)
			},
		},
		{
			name: "success: same timestamp in another interval is a separate row",
			candles: []entity.Candle{
				candle("000001.SZ", "1h", baseTime, "9.10"),
			},
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "000001.SZ", "1d", baseTime)
			},
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(2), count)
			},
		},
		{
			name: "success: batches larger than one insert",
			candles: func() []entity.Candle {
				cs := make([]entity.Candle, 0, upsertBatchSize*2+5)
				for i := 0; i < upsertBatchSize*2+5; i++ {
					cs = append(cs, candle("600000.SH", "1m", baseTime.Add(time.Duration(i)*time.Minute), "7.5"))
				}
				return cs
			}(),
			validateFunc: func(t *testing.T, db *gorm.DB) {
				var count int64
				db.Model(&CandleModel{}).Count(&count)
				assert.Equal(t, int64(upsertBatchSize*2+5), count)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := setupTestDB(t)
			repo := NewCandleRepository(db)

			if tt.setupFunc != nil {
				tt.setupFunc(t, db)
			}

			err := repo.UpsertBatch(context.Background(), tt.candles)
			require.NoError(t, err)
			if tt.validateFunc != nil {
				tt.validateFunc(t, db)
			}
		})
	}
}

func TestCandleGorm_Find(t *testing.T) {
	t.Parallel()

	baseTime := time.Date(2024, 1, 2, 15, 0, 0, 0, marketclock.CST)

	tests := []struct {
		name         string
		symbol       string
		interval     string
		outputsize   int
		setupFunc    func(t *testing.T, db *gorm.DB)
		validateFunc func(t *testing.T, candles []entity.Candle)
	}{
		{
			name:       "success: find candles by symbol and interval",
			symbol:     "000001.SZ",
			interval:   "1d",
			outputsize: 10,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "000001.SZ", "1d", baseTime)
				seedCandle(t, db, "000001.SZ", "1d", baseTime.AddDate(0, 0, 1))
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Len(t, candles, 2, "should return 2 candles")
			},
		},
		{
			name:       "success: empty result when no matching candles",
			symbol:     "999999.SH",
			interval:   "1d",
			outputsize: 10,
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Empty(t, candles, "should return empty slice")
			},
		},
		{
			name:       "success: filter by symbol",
			symbol:     "000001.SZ",
			interval:   "1d",
			outputsize: 10,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "000001.SZ", "1d", baseTime)
				seedCandle(t, db, "600000.SH", "1d", baseTime)
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Len(t, candles, 1)
				assert.Equal(t, "000001.SZ", candles[0].Symbol)
			},
		},
		{
			name:       "success: filter by interval",
			symbol:     "000001.SZ",
			interval:   "1d",
			outputsize: 10,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "000001.SZ", "1d", baseTime)
				seedCandle(t, db, "000001.SZ", "5m", baseTime)
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Len(t, candles, 1)
				assert.Equal(t, "1d", candles[0].Interval)
			},
		},
		{
			name:       "success: respect outputsize limit",
			symbol:     "000001.SZ",
			interval:   "1d",
			outputsize: 2,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				for i := 0; i < 5; i++ {
					seedCandle(t, db, "000001.SZ", "1d", baseTime.AddDate(0, 0, i))
				}
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Len(t, candles, 2)
			},
		},
		{
			name:       "success: outputsize 0 returns all",
			symbol:     "000001.SZ",
			interval:   "1d",
			outputsize: 0,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				for i := 0; i < 5; i++ {
					seedCandle(t, db, "000001.SZ", "1d", baseTime.AddDate(0, 0, i))
				}
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				assert.Len(t, candles, 5)
			},
		},
		{
			name:       "success: results ordered by time descending",
			symbol:     "000001.SZ",
			interval:   "1d",
			outputsize: 10,
			setupFunc: func(t *testing.T, db *gorm.DB) {
				seedCandle(t, db, "000001.SZ", "1d", baseTime)
				seedCandle(t, db, "000001.SZ", "1d", baseTime.AddDate(0, 0, 2))
				seedCandle(t, db, "000001.SZ", "1d", baseTime.AddDate(0, 0, 1))
			},
			validateFunc: func(t *testing.T, candles []entity.Candle) {
				require.Len(t, candles, 3)
				assert.True(t, candles[0].Time.After(candles[1].Time), "first should be newer than second")
				assert.True(t, candles[1].Time.After(candles[2].Time), "second should be newer than third")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := setupTestDB(t)
			repo := NewCandleRepository(db)

			if tt.setupFunc != nil {
				tt.setupFunc(t, db)
			}

			candles, err := repo.Find(context.Background(), tt.symbol, tt.interval, tt.outputsize)
			require.NoError(t, err)
			if tt.validateFunc != nil {
				tt.validateFunc(t, candles)
			}
		})
	}
}

func TestCandleGorm_Latest(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCandleRepository(db)
	ctx := context.Background()
	baseTime := time.Date(2024, 1, 2, 15, 0, 0, 0, marketclock.CST)

	got, err := repo.Latest(ctx, "000001.SZ", "1d")
	require.NoError(t, err)
	assert.Nil(t, got, "empty series has no latest candle")

	seedCandle(t, db, "000001.SZ", "1d", baseTime.AddDate(0, 0, 1))
	seedCandle(t, db, "000001.SZ", "1d", baseTime)
	seedCandle(t, db, "000001.SZ", "1h", baseTime.AddDate(0, 0, 5))

	got, err = repo.Latest(ctx, "000001.SZ", "1d")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, baseTime.AddDate(0, 0, 1).Equal(got.Time))
	assert.Equal(t, marketclock.CST, got.Time.Location())
}

func TestCandleGorm_Find_EntityMapping(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	repo := NewCandleRepository(db)

	tm := time.Date(2024, 6, 14, 15, 0, 0, 0, marketclock.CST)
	in := entity.Candle{
		Symbol:   "600000.SH",
		Interval: "1d",
		Code:     "600000",
		Exchange: "SH",
		Time:     tm,
		Open:     d("7.12"),
		High:     d("7.25"),
		Low:      d("7.01"),
		Close:    d("7.2"),
		Volume:   5000000,
		Amount:   d("35800000.5"),
	}
	require.NoError(t, repo.UpsertBatch(context.Background(), []entity.Candle{in}))

	var stored CandleModel
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, tm.Unix(), stored.Time.Unix())

	result, err := repo.Find(context.Background(), "600000.SH", "1d", 1)
	require.NoError(t, err)
	require.Len(t, result, 1)

	got := result[0]
	assert.Equal(t, "600000.SH", got.Symbol)
	assert.Equal(t, "1d", got.Interval)
	assert.Equal(t, "600000", got.Code)
	assert.Equal(t, "SH", got.Exchange)
	assert.True(t, tm.Equal(got.Time), "Time does not match")
	assert.Equal(t, "2024-06-14 15:00", marketclock.FormatWallClock(got.Time))
	assert.True(t, in.Open.Equal(got.Open), "Open does not match: %s", got.Open)
	assert.True(t, in.High.Equal(got.High))
	assert.True(t, in.Low.Equal(got.Low))
	assert.True(t, in.Close.Equal(got.Close))
	assert.Equal(t, int64(5000000), got.Volume)
	assert.True(t, in.Amount.Equal(got.Amount), "Amount does not match: %s", got.Amount)
}
