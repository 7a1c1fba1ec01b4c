package dto

import (
	"github.com/shopspring/decimal"

	"ashare_sync/internal/feature/candles/domain/entity"
	"ashare_sync/internal/shared/marketclock"
)

// CandlesQuery は GET /candles/:symbol のクエリパラメータです。
// outputsize の既定値と上限はusecase側で適用されます。
type CandlesQuery struct {
	Interval   string `form:"interval"`
	OutputSize int    `form:"outputsize" binding:"gte=0"`
}

// CandleResponse はロウソク足データのレスポンスDTOです。
// 価格は精度を保つため文字列としてシリアライズされます。
type CandleResponse struct {
	Time   string          `json:"time"`   // 日時 (YYYY-MM-DD HH:MM, UTC+8)
	Open   decimal.Decimal `json:"open"`   // 始値
	High   decimal.Decimal `json:"high"`   // 高値
	Low    decimal.Decimal `json:"low"`    // 安値
	Close  decimal.Decimal `json:"close"`  // 終値
	Volume int64           `json:"volume"` // 出来高（株）
	Amount decimal.Decimal `json:"amount"` // 売買代金
}

// NewCandleResponses は並び順を保ったままエンティティを変換します。
func NewCandleResponses(candles []entity.Candle) []CandleResponse {
	out := make([]CandleResponse, len(candles))
	for i, c := range candles {
		out[i] = CandleResponse{
			Time:   marketclock.FormatWallClock(c.Time),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
			Amount: c.Amount,
		}
	}
	return out
}

// ErrorResponse はエラーレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}
