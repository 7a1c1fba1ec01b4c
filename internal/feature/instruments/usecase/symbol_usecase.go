package usecase

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"ashare_sync/internal/feature/instruments/domain/entity"
)

// SymbolRepository is the read side of the symbols table.
type SymbolRepository interface {
	ListActive(ctx context.Context) ([]entity.Symbol, error)
}

// SymbolUsecase serves the universe stored by the last sync.
type SymbolUsecase struct {
	repo SymbolRepository
}

func NewSymbolUsecase(r SymbolRepository) *SymbolUsecase {
	return &SymbolUsecase{repo: r}
}

// ListActiveSymbols returns the stored universe ordered by symbol, so SZ codes
// come before SH codes and the order does not depend on the table's row order.
func (u *SymbolUsecase) ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error) {
	symbols, err := u.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	slices.SortStableFunc(symbols, func(a, b entity.Symbol) int {
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return symbols, nil
}
