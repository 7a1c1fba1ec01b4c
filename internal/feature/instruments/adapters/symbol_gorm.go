// Package adapters はinstrumentsフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"

	"ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/instruments/usecase"

	"gorm.io/gorm"
)

// symbolGorm はSymbolRepositoryとSymbolWriterのGORM実装です。
type symbolGorm struct {
	db *gorm.DB
}

var (
	_ usecase.SymbolRepository = (*symbolGorm)(nil)
	_ usecase.SymbolWriter     = (*symbolGorm)(nil)
)

// NewSymbolRepository は指定されたDB接続でsymbolGormリポジトリの新しいインスタンスを生成します。
func NewSymbolRepository(db *gorm.DB) *symbolGorm {
	return &symbolGorm{db: db}
}

// ListActive はsort_key順にすべてのアクティブな銘柄を返します。
func (r *symbolGorm) ListActive(ctx context.Context) ([]entity.Symbol, error) {
	var symbols []entity.Symbol
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_key ASC").
		Find(&symbols).Error; err != nil {
		return nil, err
	}
	return symbols, nil
}

// ReplaceAll は銘柄テーブルの内容を1トランザクションで丸ごと置き換えます。
func (r *symbolGorm) ReplaceAll(ctx context.Context, symbols []entity.Symbol) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&entity.Symbol{}).Error; err != nil {
			return err
		}
		if len(symbols) == 0 {
			return nil
		}
		rows := make([]entity.Symbol, len(symbols))
		copy(rows, symbols)
		for i := range rows {
			rows[i].ID = 0
		}
		return tx.CreateInBatches(&rows, 500).Error
	})
}
