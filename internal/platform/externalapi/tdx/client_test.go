package tdx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/injoyai/tdx/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	candle "ashare_sync/internal/feature/candles/domain/entity"
	instrument "ashare_sync/internal/feature/instruments/domain/entity"
)

func fakeSecurities(market instrument.Market, n int) []instrument.Security {
	out := make([]instrument.Security, n)
	for i := range out {
		out[i] = instrument.Security{Code: fmt.Sprintf("%06d", i), Market: market, VolUnit: 100, DecimalPoint: 2}
	}
	return out
}

func TestClient_ListSecurities_PagesCachedList(t *testing.T) {
	calls := 0
	c := &Client{
		codes: func(market instrument.Market) ([]instrument.Security, error) {
			calls++
			return fakeSecurities(market, 2500), nil
		},
	}
	ctx := context.Background()

	n, err := c.CountSecurities(ctx, instrument.MarketSZ)
	require.NoError(t, err)
	assert.Equal(t, 2500, n)

	first, err := c.ListSecurities(ctx, instrument.MarketSZ, 0)
	require.NoError(t, err)
	assert.Len(t, first, SecurityPageSize)
	assert.Equal(t, "000000", first[0].Code)

	last, err := c.ListSecurities(ctx, instrument.MarketSZ, 2000)
	require.NoError(t, err)
	assert.Len(t, last, 500)
	assert.Equal(t, "002499", last[499].Code)

	beyond, err := c.ListSecurities(ctx, instrument.MarketSZ, 2500)
	require.NoError(t, err)
	assert.Empty(t, beyond)

	assert.Equal(t, 1, calls, "security list should be fetched once per market")

	_, err = c.CountSecurities(ctx, instrument.MarketSH)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestClient_ListSecurities_Errors(t *testing.T) {
	boom := errors.New("boom")
	c := &Client{
		codes: func(instrument.Market) ([]instrument.Security, error) { return nil, boom },
	}

	_, err := c.ListSecurities(context.Background(), instrument.MarketSH, 0)
	assert.ErrorIs(t, err, boom)

	_, err = c.CountSecurities(context.Background(), instrument.Market(7))
	assert.ErrorIs(t, err, instrument.ErrInvalidMarket)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CountSecurities(ctx, instrument.MarketSZ)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_GetBars(t *testing.T) {
	var gotCode string
	var gotStart, gotCount uint16
	c := &Client{
		klines: map[int]klineFetcher{
			candle.KlineTypeDaily: func(code string, start, count uint16) ([]*protocol.Kline, error) {
				gotCode, gotStart, gotCount = code, start, count
				return []*protocol.Kline{
					{Time: time.Date(2024, 1, 5, 15, 0, 0, 0, time.Local), Volume: 12},
				}, nil
			},
		},
	}

	bars, err := c.GetBars(context.Background(), candle.KlineTypeDaily, instrument.MarketSH, "600000", 800, 800)
	require.NoError(t, err)
	require.Len(t, bars, 1)

	assert.Equal(t, "sh600000", gotCode)
	assert.Equal(t, uint16(800), gotStart)
	assert.Equal(t, uint16(800), gotCount)
	assert.Equal(t, "2024-01-05 15:00", bars[0].Datetime)
	assert.Equal(t, float64(1200), bars[0].Volume)
}

func TestClient_GetBars_Errors(t *testing.T) {
	boom := errors.New("boom")
	c := &Client{
		klines: map[int]klineFetcher{
			candle.KlineType5Min: func(string, uint16, uint16) ([]*protocol.Kline, error) { return nil, boom },
		},
	}
	ctx := context.Background()

	_, err := c.GetBars(ctx, candle.KlineType5Min, instrument.MarketSZ, "000001", 0, 800)
	assert.ErrorIs(t, err, boom)

	_, err = c.GetBars(ctx, 42, instrument.MarketSZ, "000001", 0, 800)
	assert.ErrorIs(t, err, ErrUnsupportedKlineType)

	_, err = c.GetBars(ctx, candle.KlineType5Min, instrument.Market(3), "000001", 0, 800)
	assert.ErrorIs(t, err, instrument.ErrInvalidMarket)

	_, err = c.GetBars(ctx, candle.KlineType5Min, instrument.MarketSZ, "000001", -1, 800)
	assert.Error(t, err)

	_, err = c.GetBars(ctx, candle.KlineType5Min, instrument.MarketSZ, "000001", 0, 0)
	assert.Error(t, err)
}

// A deep 1m backfill reaches the protocol limit and sees an empty page, which ends paging.
func TestClient_GetBars_PastProtocolLimitIsExhausted(t *testing.T) {
	calls := 0
	c := &Client{
		klines: map[int]klineFetcher{
			candle.KlineType1Min: func(string, uint16, uint16) ([]*protocol.Kline, error) {
				calls++
				return []*protocol.Kline{{Time: time.Date(2023, 6, 1, 9, 31, 0, 0, time.UTC)}}, nil
			},
		},
	}
	ctx := context.Background()

	bars, err := c.GetBars(ctx, candle.KlineType1Min, instrument.MarketSZ, "000001", maxOffset, 800)
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	bars, err = c.GetBars(ctx, candle.KlineType1Min, instrument.MarketSZ, "000001", maxOffset+1, 800)
	require.NoError(t, err)
	assert.Empty(t, bars)

	bars, err = c.GetBars(ctx, candle.KlineType1Min, instrument.MarketSZ, "000001", 70400, 800)
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Equal(t, 1, calls)
}

func TestClient_GetIndexBars(t *testing.T) {
	var gotCode string
	c := &Client{
		index: func(code string, start, count uint16) ([]*protocol.Kline, error) {
			gotCode = code
			return []*protocol.Kline{{Time: time.Date(2024, 1, 4, 15, 0, 0, 0, time.UTC)}}, nil
		},
	}

	bars, err := c.GetIndexBars(context.Background(), candle.KlineTypeIndexDaily, instrument.MarketSH, "000001", 0, 10)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "sh000001", gotCode)
	assert.Equal(t, "2024-01-04 15:00", bars[0].Datetime)

	_, err = c.GetIndexBars(context.Background(), candle.KlineTypeDaily, instrument.MarketSH, "000001", 0, 10)
	assert.ErrorIs(t, err, ErrUnsupportedKlineType)
}

func TestClient_GetFinanceInfo(t *testing.T) {
	loads := 0
	c := &Client{
		equity: onceEquity(func() (equityFunc, error) {
			loads++
			return func(code string, _ time.Time) (int64, int64, bool) {
				if code != "sz000001" {
					return 0, 0, false
				}
				return 19405918198, 19405600653, true
			}, nil
		}),
	}
	ctx := context.Background()

	info, err := c.GetFinanceInfo(ctx, instrument.MarketSZ, "000001")
	require.NoError(t, err)
	assert.Equal(t, int64(19405918198), info.TotalShares)
	assert.Equal(t, int64(19405600653), info.CirculatingShares)

	_, err = c.GetFinanceInfo(ctx, instrument.MarketSZ, "000002")
	assert.ErrorIs(t, err, ErrEquityNotFound)
	assert.Equal(t, 1, loads)
}

func TestOnceEquity_RetriesFailedLoad(t *testing.T) {
	attempts := 0
	get := onceEquity(func() (equityFunc, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("download failed")
		}
		return func(string, time.Time) (int64, int64, bool) { return 1, 1, true }, nil
	})

	_, err := get()
	require.Error(t, err)
	fn, err := get()
	require.NoError(t, err)
	assert.NotNil(t, fn)
	assert.Equal(t, 2, attempts)
}

func TestFullCode(t *testing.T) {
	tests := []struct {
		market  instrument.Market
		code    string
		want    string
		wantErr bool
	}{
		{instrument.MarketSZ, "000001", "sz000001", false},
		{instrument.MarketSH, "600000", "sh600000", false},
		{instrument.Market(9), "600000", "", true},
	}
	for _, tt := range tests {
		got, err := fullCode(tt.market, tt.code)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestClient_Close(t *testing.T) {
	closed := false
	c := &Client{closeFn: func() { closed = true }}
	require.NoError(t, c.Close())
	assert.True(t, closed)
}
