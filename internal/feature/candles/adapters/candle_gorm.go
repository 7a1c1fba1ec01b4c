package adapters

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ashare_sync/internal/feature/candles/domain/entity"
	"ashare_sync/internal/feature/candles/usecase"
	"ashare_sync/internal/shared/marketclock"
)

// upsertBatchSize keeps a single INSERT below the bind-parameter limits of sqlite and postgres.
const upsertBatchSize = 200

type candleGorm struct {
	db *gorm.DB
}

var (
	_ usecase.CandleRepository = (*candleGorm)(nil)
	_ usecase.CandleStore      = (*candleGorm)(nil)
)

func NewCandleRepository(db *gorm.DB) *candleGorm {
	return &candleGorm{db: db}
}

// CandleModel is one OHLCV row. Timestamps are stored in UTC.
type CandleModel struct {
	ID       uint      `gorm:"primaryKey"`
	Symbol   string    `gorm:"size:16;not null;uniqueIndex:ohlcv_sym_int_time,priority:1"`
	Interval string    `gorm:"size:8;not null;uniqueIndex:ohlcv_sym_int_time,priority:2"`
	Time     time.Time `gorm:"not null;uniqueIndex:ohlcv_sym_int_time,priority:3"`
	Code     string    `gorm:"size:8;not null;index"`
	Exchange string    `gorm:"size:2;not null"`

	Open   decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	High   decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Low    decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Close  decimal.Decimal `gorm:"type:numeric(18,4);not null"`
	Volume int64           `gorm:"not null;default:0"`
	Amount decimal.Decimal `gorm:"type:numeric(24,4);not null"`
}

func (CandleModel) TableName() string {
	return "ohlcv"
}

func toModel(e entity.Candle) CandleModel {
	return CandleModel{
		Symbol:   e.Symbol,
		Interval: e.Interval,
		Time:     e.Time.UTC(),
		Code:     e.Code,
		Exchange: e.Exchange,
		Open:     e.Open,
		High:     e.High,
		Low:      e.Low,
		Close:    e.Close,
		Volume:   e.Volume,
		Amount:   e.Amount,
	}
}

func toEntity(m CandleModel) entity.Candle {
	return entity.Candle{
		Symbol:   m.Symbol,
		Interval: m.Interval,
		Code:     m.Code,
		Exchange: m.Exchange,
		Time:     m.Time.In(marketclock.CST),
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
		Amount:   m.Amount,
	}
}

// series filters one (symbol, interval) series; column names are quoted by gorm
// because "interval" is a keyword in postgres.
func (r *candleGorm) series(ctx context.Context, symbol, interval string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&CandleModel{}).
		Where(map[string]any{"symbol": symbol, "interval": interval}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "time"}, Desc: true})
}

func (r *candleGorm) UpsertBatch(ctx context.Context, candles []entity.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	ms := make([]CandleModel, 0, len(candles))
	for _, e := range candles {
		ms = append(ms, toModel(e))
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "time"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "exchange", "open", "high", "low", "close", "volume", "amount"}),
	}).CreateInBatches(&ms, upsertBatchSize).Error
}

// Latest returns the newest candle of the series, or nil when nothing is stored.
func (r *candleGorm) Latest(ctx context.Context, symbol, interval string) (*entity.Candle, error) {
	var rows []CandleModel
	if err := r.series(ctx, symbol, interval).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	c := toEntity(rows[0])
	return &c, nil
}

func (r *candleGorm) Find(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	var rows []CandleModel
	q := r.series(ctx, symbol, interval)
	if outputsize > 0 {
		q = q.Limit(outputsize)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}
