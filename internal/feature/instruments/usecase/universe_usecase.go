// Package usecase implements the instrument universe and symbol listing logic.
package usecase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"ashare_sync/internal/feature/instruments/domain"
	"ashare_sync/internal/feature/instruments/domain/entity"
)

// SecurityPageSize is the fixed page size of the quote server's security list.
const SecurityPageSize = 1000

// SecurityLister pages through the quote server's security list.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type SecurityLister interface {
	CountSecurities(ctx context.Context, market entity.Market) (int, error)
	ListSecurities(ctx context.Context, market entity.Market, offset int) ([]entity.Security, error)
}

// SnapshotStore persists the universe as a flat file, overwritten on every save.
type SnapshotStore interface {
	Save(ctx context.Context, securities []entity.Security) error
	Load(ctx context.Context) ([]entity.Security, error)
}

// SymbolWriter replaces the queryable copy of the universe.
type SymbolWriter interface {
	ReplaceAll(ctx context.Context, symbols []entity.Symbol) error
}

// UniverseUsecase builds the tradeable common-stock universe.
type UniverseUsecase struct {
	lister   SecurityLister
	snapshot SnapshotStore
	symbols  SymbolWriter
}

// NewUniverseUsecase creates a UniverseUsecase. symbols may be nil when no database is configured.
func NewUniverseUsecase(lister SecurityLister, snapshot SnapshotStore, symbols SymbolWriter) *UniverseUsecase {
	return &UniverseUsecase{lister: lister, snapshot: snapshot, symbols: symbols}
}

// Build fetches the full security list of every market, keeps the common stocks and
// persists them as the new universe snapshot.
func (u *UniverseUsecase) Build(ctx context.Context) ([]entity.Instrument, error) {
	var rows []entity.Security
	for _, m := range entity.Markets() {
		total, err := u.lister.CountSecurities(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("count securities %s: %w", m, err)
		}
		for offset := 0; offset < total; offset += SecurityPageSize {
			page, err := u.lister.ListSecurities(ctx, m, offset)
			if err != nil {
				return nil, fmt.Errorf("list securities %s offset %d: %w", m, offset, err)
			}
			rows = append(rows, page...)
		}
		zap.L().Debug("security list fetched", zap.Stringer("market", m), zap.Int("count", total))
	}

	stocks := FilterStocks(rows)

	if err := u.snapshot.Save(ctx, stocks); err != nil {
		return nil, fmt.Errorf("save universe snapshot: %w", err)
	}
	if u.symbols != nil {
		if err := u.symbols.ReplaceAll(ctx, toSymbols(stocks)); err != nil {
			return nil, fmt.Errorf("replace symbols: %w", err)
		}
	}

	zap.L().Info("instrument universe rebuilt",
		zap.Int("securities", len(rows)),
		zap.Int("stocks", len(stocks)),
	)
	return toInstruments(stocks), nil
}

// Load returns the universe from the last snapshot without contacting the quote server.
func (u *UniverseUsecase) Load(ctx context.Context) ([]entity.Instrument, error) {
	rows, err := u.snapshot.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe snapshot: %w", err)
	}
	return toInstruments(FilterStocks(rows)), nil
}

// FilterStocks deduplicates rows, classifies them and returns the stocks sorted by (code, exchange).
// Rows repeating an already seen (code, market) are dropped.
func FilterStocks(rows []entity.Security) []entity.Security {
	type key struct {
		code   string
		market entity.Market
	}
	seen := make(map[key]struct{}, len(rows))
	out := make([]entity.Security, 0, len(rows))
	for _, r := range rows {
		k := key{r.Code, r.Market}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		r.Category = domain.Classify(r.Code, r.Market)
		if r.Category != domain.CategoryStock {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Market.String() < out[j].Market.String()
	})
	return out
}

func toInstruments(rows []entity.Security) []entity.Instrument {
	out := make([]entity.Instrument, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Instrument())
	}
	return out
}

func toSymbols(rows []entity.Security) []entity.Symbol {
	out := make([]entity.Symbol, 0, len(rows))
	for i, r := range rows {
		inst := r.Instrument()
		out = append(out, entity.Symbol{
			Symbol:       inst.Symbol(),
			Code:         r.Code,
			Exchange:     r.Market.String(),
			Name:         r.Name,
			VolUnit:      r.VolUnit,
			DecimalPoint: r.DecimalPoint,
			PreClose:     r.PreClose,
			IsActive:     true,
			SortKey:      i,
		})
	}
	return out
}
