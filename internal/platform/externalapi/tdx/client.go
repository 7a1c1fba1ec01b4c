// Package tdx adapts github.com/injoyai/tdx to the quote-source interfaces of the usecases.
package tdx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/injoyai/tdx"
	"github.com/injoyai/tdx/protocol"
	"go.uber.org/zap"

	candle "ashare_sync/internal/feature/candles/domain/entity"
	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	supply "ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/shared/marketclock"
)

// SecurityPageSize is the number of rows one ListSecurities call returns.
const SecurityPageSize = 1000

// lotSize converts the server's lot counts into shares.
const lotSize = 100

var (
	// ErrEquityNotFound is returned when the share-capital table has no row for a code.
	ErrEquityNotFound = errors.New("equity not found")
	// ErrUnsupportedKlineType is returned for a kline type without a server request.
	ErrUnsupportedKlineType = errors.New("unsupported kline type")
)

type klineFetcher func(code string, start, count uint16) ([]*protocol.Kline, error)

type equityFunc func(code string, at time.Time) (total, circulating int64, ok bool)

// Client is one quote-server connection plus the lazily loaded share-capital table.
type Client struct {
	codes   func(market instrument.Market) ([]instrument.Security, error)
	klines  map[int]klineFetcher
	index   klineFetcher
	equity  func() (equityFunc, error)
	closeFn func()

	mu         sync.Mutex
	securities map[instrument.Market][]instrument.Security
}

// Dial connects to the first reachable host. An empty list uses the library's built-in host list.
func Dial(hosts []string) (*Client, error) {
	if len(hosts) == 0 {
		hosts = tdx.Hosts
	}
	cli, err := tdx.DialHosts(hosts)
	if err != nil {
		return nil, fmt.Errorf("dial quote server: %w", err)
	}
	zap.L().Info("connected to quote server", zap.Int("hosts", len(hosts)))
	return newClient(cli), nil
}

func newClient(cli *tdx.Client) *Client {
	c := &Client{
		codes: func(market instrument.Market) ([]instrument.Security, error) {
			resp, err := cli.GetCodeAll(exchange(market))
			if err != nil {
				return nil, err
			}
			out := make([]instrument.Security, 0, len(resp.List))
			for _, v := range resp.List {
				out = append(out, instrument.Security{
					Code:         v.Code,
					VolUnit:      int(v.Multiple),
					DecimalPoint: int(v.Decimal),
					Name:         v.Name,
					PreClose:     v.LastPrice,
					Market:       market,
				})
			}
			return out, nil
		},
		klines: map[int]klineFetcher{
			candle.KlineType1Min: func(code string, start, count uint16) ([]*protocol.Kline, error) {
				resp, err := cli.GetKlineMinute(code, start, count)
				if err != nil {
					return nil, err
				}
				return resp.List, nil
			},
			candle.KlineType5Min: func(code string, start, count uint16) ([]*protocol.Kline, error) {
				resp, err := cli.GetKline5Minute(code, start, count)
				if err != nil {
					return nil, err
				}
				return resp.List, nil
			},
			candle.KlineType15Min: func(code string, start, count uint16) ([]*protocol.Kline, error) {
				resp, err := cli.GetKline15Minute(code, start, count)
				if err != nil {
					return nil, err
				}
				return resp.List, nil
			},
			candle.KlineTypeHour: func(code string, start, count uint16) ([]*protocol.Kline, error) {
				resp, err := cli.GetKlineHour(code, start, count)
				if err != nil {
					return nil, err
				}
				return resp.List, nil
			},
			candle.KlineTypeDaily: func(code string, start, count uint16) ([]*protocol.Kline, error) {
				resp, err := cli.GetKlineDay(code, start, count)
				if err != nil {
					return nil, err
				}
				return resp.List, nil
			},
		},
		index: func(code string, start, count uint16) ([]*protocol.Kline, error) {
			resp, err := cli.GetIndexDay(code, start, count)
			if err != nil {
				return nil, err
			}
			return resp.List, nil
		},
		closeFn: func() { cli.Close() },
	}
	c.equity = onceEquity(func() (equityFunc, error) {
		gb, err := tdx.NewGbbq()
		if err != nil {
			return nil, err
		}
		return func(code string, at time.Time) (int64, int64, bool) {
			eq := gb.GetEquity(code, at)
			if eq == nil {
				return 0, 0, false
			}
			return int64(eq.Total), int64(eq.Float), true
		}, nil
	})
	return c
}

// onceEquity loads the share-capital table on first use; a failed load is retried next call.
func onceEquity(load func() (equityFunc, error)) func() (equityFunc, error) {
	var (
		mu sync.Mutex
		fn equityFunc
	)
	return func() (equityFunc, error) {
		mu.Lock()
		defer mu.Unlock()
		if fn != nil {
			return fn, nil
		}
		f, err := load()
		if err != nil {
			return nil, fmt.Errorf("load share capital table: %w", err)
		}
		fn = f
		return fn, nil
	}
}

// CountSecurities returns the number of rows in the market's security list.
func (c *Client) CountSecurities(ctx context.Context, market instrument.Market) (int, error) {
	list, err := c.securityList(ctx, market)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// ListSecurities returns one page of the market's security list starting at offset.
func (c *Client) ListSecurities(ctx context.Context, market instrument.Market, offset int) ([]instrument.Security, error) {
	list, err := c.securityList(ctx, market)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= len(list) {
		return nil, nil
	}
	end := min(offset+SecurityPageSize, len(list))
	out := make([]instrument.Security, end-offset)
	copy(out, list[offset:end])
	return out, nil
}

func (c *Client) securityList(ctx context.Context, market instrument.Market) ([]instrument.Security, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !market.Valid() {
		return nil, fmt.Errorf("%w: id %d", instrument.ErrInvalidMarket, int(market))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if list, ok := c.securities[market]; ok {
		return list, nil
	}
	list, err := c.codes(market)
	if err != nil {
		return nil, fmt.Errorf("list securities %s: %w", market, err)
	}
	if c.securities == nil {
		c.securities = make(map[instrument.Market][]instrument.Security)
	}
	c.securities[market] = list
	return list, nil
}

// GetBars returns up to count bars of the given kline type, counting back offset bars from the newest.
// Bars are ordered oldest first.
func (c *Client) GetBars(ctx context.Context, klineType int, market instrument.Market, code string, offset, count int) ([]candle.RawBar, error) {
	fetch, ok := c.klines[klineType]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKlineType, klineType)
	}
	return c.bars(ctx, fetch, market, code, offset, count)
}

// GetIndexBars returns index daily bars. Only the index daily kline type is served.
func (c *Client) GetIndexBars(ctx context.Context, klineType int, market instrument.Market, code string, offset, count int) ([]candle.RawBar, error) {
	if klineType != candle.KlineTypeIndexDaily {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKlineType, klineType)
	}
	return c.bars(ctx, c.index, market, code, offset, count)
}

func (c *Client) bars(ctx context.Context, fetch klineFetcher, market instrument.Market, code string, offset, count int) ([]candle.RawBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := fullCode(market, code)
	if err != nil {
		return nil, err
	}
	if offset > maxOffset {
		// bars older than the last addressable offset are out of reach: history ends here
		return nil, nil
	}
	start, n, err := window(offset, count)
	if err != nil {
		return nil, err
	}
	list, err := fetch(full, start, n)
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", full, err)
	}
	return toRawBars(list), nil
}

// GetFinanceInfo returns the share capital in effect now for the instrument.
func (c *Client) GetFinanceInfo(ctx context.Context, market instrument.Market, code string) (supply.FinanceInfo, error) {
	if err := ctx.Err(); err != nil {
		return supply.FinanceInfo{}, err
	}
	full, err := fullCode(market, code)
	if err != nil {
		return supply.FinanceInfo{}, err
	}
	lookup, err := c.equity()
	if err != nil {
		return supply.FinanceInfo{}, err
	}
	total, circ, ok := lookup(full, time.Now())
	if !ok {
		return supply.FinanceInfo{}, fmt.Errorf("%w: %s", ErrEquityNotFound, full)
	}
	return supply.FinanceInfo{TotalShares: total, CirculatingShares: circ}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.closeFn != nil {
		c.closeFn()
	}
	return nil
}

func exchange(market instrument.Market) protocol.Exchange {
	if market == instrument.MarketSH {
		return protocol.ExchangeSH
	}
	return protocol.ExchangeSZ
}

// fullCode prefixes a six-digit code with its market, e.g. "sz000001".
func fullCode(market instrument.Market, code string) (string, error) {
	switch market {
	case instrument.MarketSZ:
		return "sz" + code, nil
	case instrument.MarketSH:
		return "sh" + code, nil
	}
	return "", fmt.Errorf("%w: id %d", instrument.ErrInvalidMarket, int(market))
}

// maxOffset is the largest bar offset the protocol can encode.
const maxOffset = 0xFFFF

func window(offset, count int) (uint16, uint16, error) {
	if offset < 0 || offset > maxOffset || count <= 0 || count > 0xFFFF {
		return 0, 0, fmt.Errorf("bar window out of range: offset=%d count=%d", offset, count)
	}
	return uint16(offset), uint16(count), nil
}

func toRawBars(list []*protocol.Kline) []candle.RawBar {
	out := make([]candle.RawBar, 0, len(list))
	for _, k := range list {
		if k == nil {
			continue
		}
		t := k.Time
		wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, marketclock.CST)
		out = append(out, candle.RawBar{
			Datetime: marketclock.FormatWallClock(wall),
			Open:     k.Open.Float64(),
			High:     k.High.Float64(),
			Low:      k.Low.Float64(),
			Close:    k.Close.Float64(),
			Volume:   float64(k.Volume * lotSize),
			Amount:   k.Amount.Float64(),
		})
	}
	return out
}
