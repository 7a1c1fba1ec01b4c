// Package usecase はローソク足データの同期と参照のビジネスロジックを実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"

	"ashare_sync/internal/feature/candles/domain/entity"
	instrument "ashare_sync/internal/feature/instruments/domain/entity"
)

const (
	// DefaultInterval はローソク足クエリのデフォルト時間間隔です。
	DefaultInterval = "1d"
	// DefaultOutputSize はoutputsize未指定時の返却件数です。
	DefaultOutputSize = 200
	// MaxOutputSize は返却件数の上限です。超過分は切り詰められます。
	MaxOutputSize = 5000
)

// ErrInvalidSymbol は "000001.SZ" 形式でない銘柄指定に対して返されます。
var ErrInvalidSymbol = errors.New("invalid symbol")

// CandleRepository はローソク足データの読み取りレイヤーです。
type CandleRepository interface {
	// Find は新しい順に最大outputsize件を返します。
	Find(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
}

type candlesUsecase struct {
	candle CandleRepository
}

func NewCandlesUsecase(candle CandleRepository) *candlesUsecase {
	return &candlesUsecase{candle: candle}
}

// GetCandles は銘柄と時間間隔を正規化したうえでローソク足を取得します。
//
//   - symbol は大文字小文字を問わず受け付け、"000001.SZ" 形式に揃えます
//   - interval が空なら DefaultInterval、未対応なら ErrUnsupportedInterval
//   - outputsize が0以下なら DefaultOutputSize、上限超過なら MaxOutputSize
func (cu *candlesUsecase) GetCandles(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	inst, err := instrument.ParseSymbol(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}

	if interval == "" {
		interval = DefaultInterval
	}
	if _, err := entity.KlineType(interval); err != nil {
		return nil, err
	}

	switch {
	case outputsize <= 0:
		outputsize = DefaultOutputSize
	case outputsize > MaxOutputSize:
		outputsize = MaxOutputSize
	}

	return cu.candle.Find(ctx, inst.Symbol(), interval, outputsize)
}
