package adapters

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/feature/supply/usecase"
	"ashare_sync/internal/shared/marketclock"
)

const writeBatchSize = 500

type supplyGorm struct {
	db *gorm.DB
}

var (
	_ usecase.SupplyStore      = (*supplyGorm)(nil)
	_ usecase.SupplyRepository = (*supplyGorm)(nil)
)

func NewSupplyRepository(db *gorm.DB) *supplyGorm {
	return &supplyGorm{db: db}
}

// SupplyModel is one share-supply observation. Time is stored in UTC.
type SupplyModel struct {
	ID                uint      `gorm:"primaryKey"`
	Symbol            string    `gorm:"size:16;not null;uniqueIndex:supply_sym_time,priority:1"`
	Time              time.Time `gorm:"not null;uniqueIndex:supply_sym_time,priority:2"`
	Code              string    `gorm:"size:8;not null"`
	Exchange          string    `gorm:"size:2;not null"`
	Name              string    `gorm:"size:64"`
	TotalSupply       int64     `gorm:"not null"`
	CirculatingSupply int64     `gorm:"not null"`
}

func (SupplyModel) TableName() string {
	return "supply"
}

// WriteBatch upserts records on (symbol, time).
func (r *supplyGorm) WriteBatch(ctx context.Context, records []entity.SupplyRecord) error {
	if len(records) == 0 {
		return nil
	}
	ms := make([]SupplyModel, 0, len(records))
	for _, rec := range records {
		ms = append(ms, SupplyModel{
			Symbol:            rec.Instrument.Symbol(),
			Time:              rec.AsOf.UTC(),
			Code:              rec.Instrument.Code,
			Exchange:          rec.Instrument.Market.String(),
			Name:              rec.Instrument.Name,
			TotalSupply:       rec.TotalSupply,
			CirculatingSupply: rec.CirculatingSupply,
		})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "time"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "total_supply", "circulating_supply"}),
	}).CreateInBatches(&ms, writeBatchSize).Error
}

// Find returns up to limit records of symbol, newest first.
func (r *supplyGorm) Find(ctx context.Context, symbol string, limit int) ([]entity.SupplyRecord, error) {
	var rows []SupplyModel
	q := r.db.WithContext(ctx).
		Where(map[string]any{"symbol": symbol}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "time"}, Desc: true})
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]entity.SupplyRecord, 0, len(rows))
	for _, m := range rows {
		market, err := instrument.ParseMarket(m.Exchange)
		if err != nil {
			return nil, err
		}
		out = append(out, entity.SupplyRecord{
			Instrument:        instrument.Instrument{Code: m.Code, Market: market, Name: m.Name},
			TotalSupply:       m.TotalSupply,
			CirculatingSupply: m.CirculatingSupply,
			AsOf:              m.Time.In(marketclock.CST),
		})
	}
	return out, nil
}
