// Package entity defines the domain models for the instruments feature.
package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidMarket is returned when a market name or wire id is not SZ/SH.
var ErrInvalidMarket = errors.New("invalid market")

// Market identifies an exchange. The numeric values are the quote-server wire ids.
type Market int

const (
	// MarketSZ is the Shenzhen Stock Exchange.
	MarketSZ Market = 0
	// MarketSH is the Shanghai Stock Exchange.
	MarketSH Market = 1
)

// Markets lists every market in wire-id order.
func Markets() []Market {
	return []Market{MarketSZ, MarketSH}
}

func (m Market) String() string {
	switch m {
	case MarketSZ:
		return "SZ"
	case MarketSH:
		return "SH"
	default:
		return "Market(" + strconv.Itoa(int(m)) + ")"
	}
}

// Valid reports whether m is a known market.
func (m Market) Valid() bool {
	return m == MarketSZ || m == MarketSH
}

// ParseMarket accepts "SZ"/"SH" in any case, or the wire ids "0"/"1".
func ParseMarket(s string) (Market, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SZ", "0":
		return MarketSZ, nil
	case "SH", "1":
		return MarketSH, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMarket, s)
}

// MarketFromID converts a wire id into a Market.
func MarketFromID(id int) (Market, error) {
	m := Market(id)
	if !m.Valid() {
		return 0, fmt.Errorf("%w: id %d", ErrInvalidMarket, id)
	}
	return m, nil
}

// Instrument is a tradeable security identified by its code and market.
// Two instruments are the same when code and market match; the name is informational.
type Instrument struct {
	Code   string
	Market Market
	Name   string
}

// NewInstrument validates the market and builds an Instrument.
func NewInstrument(code string, market Market, name string) (Instrument, error) {
	if !market.Valid() {
		return Instrument{}, fmt.Errorf("%w: id %d", ErrInvalidMarket, int(market))
	}
	return Instrument{Code: code, Market: market, Name: name}, nil
}

// Symbol returns the composite "{code}.{market}" key, e.g. "000001.SZ".
func (i Instrument) Symbol() string {
	return i.Code + "." + i.Market.String()
}

func (i Instrument) String() string {
	return i.Symbol()
}

// Equal compares identity, ignoring the display name.
func (i Instrument) Equal(o Instrument) bool {
	return i.Code == o.Code && i.Market == o.Market
}

// ParseSymbol splits "000001.SZ" into an Instrument without a name.
func ParseSymbol(symbol string) (Instrument, error) {
	code, market, ok := strings.Cut(symbol, ".")
	if !ok || code == "" {
		return Instrument{}, fmt.Errorf("invalid symbol %q", symbol)
	}
	m, err := ParseMarket(market)
	if err != nil {
		return Instrument{}, err
	}
	return Instrument{Code: code, Market: m}, nil
}

// Security is one row of the quote server's security list, after classification.
type Security struct {
	Code         string
	VolUnit      int
	DecimalPoint int
	Name         string
	PreClose     float64
	Market       Market
	Category     string
}

// Instrument returns the identity part of the row.
func (s Security) Instrument() Instrument {
	return Instrument{Code: s.Code, Market: s.Market, Name: s.Name}
}
