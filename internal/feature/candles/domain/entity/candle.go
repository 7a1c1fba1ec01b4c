// Package entity defines the domain models for the candles feature.
package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedInterval is returned for an interval without a quote-server kline type.
var ErrUnsupportedInterval = errors.New("unsupported interval")

// Kline types understood by the quote server.
const (
	KlineType5Min       = 0
	KlineType15Min      = 1
	KlineTypeHour       = 3
	KlineTypeDaily      = 4
	KlineType1Min       = 8
	KlineTypeIndexDaily = 9
)

var klineTypes = map[string]int{
	"1m":  KlineType1Min,
	"5m":  KlineType5Min,
	"15m": KlineType15Min,
	"1h":  KlineTypeHour,
	"1d":  KlineTypeDaily,
}

// Intervals returns the supported interval names, shortest first.
func Intervals() []string {
	return []string{"1m", "5m", "15m", "1h", "1d"}
}

// KlineType maps an interval ("1m", "5m", "15m", "1h", "1d") to its quote-server kline type.
func KlineType(interval string) (int, error) {
	t, ok := klineTypes[interval]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedInterval, interval)
	}
	return t, nil
}

// RawBar is one bar as delivered by the quote server, before time normalization.
type RawBar struct {
	Datetime string // "2006-01-02 15:04" exchange wall clock
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Amount   float64
}

// Candle represents OHLCV (Open, High, Low, Close, Volume) candlestick data
// for an A-share instrument at a specific time interval.
type Candle struct {
	Symbol   string    // Composite key (e.g., "000001.SZ")
	Interval string    // Time interval (e.g., "1d", "15m")
	Code     string    // Six-digit security code
	Exchange string    // "SZ" or "SH"
	Time     time.Time // Bar timestamp, UTC+8
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   int64
	Amount   decimal.Decimal // Turnover in CNY
}
