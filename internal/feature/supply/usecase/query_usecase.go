package usecase

import (
	"context"
	"errors"
	"fmt"

	instrument "ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/supply/domain/entity"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 1000
)

// ErrInvalidSymbol is returned for a symbol not in "000001.SZ" form.
var ErrInvalidSymbol = errors.New("invalid symbol")

// SupplyRepository is the read side of the supply store.
type SupplyRepository interface {
	// Find returns the newest records of symbol first.
	Find(ctx context.Context, symbol string, limit int) ([]entity.SupplyRecord, error)
}

type queryUsecase struct {
	repo SupplyRepository
}

func NewQueryUsecase(repo SupplyRepository) *queryUsecase {
	return &queryUsecase{repo: repo}
}

// ListSupply returns up to limit records of symbol, newest first. The symbol is matched
// case-insensitively. Out-of-range limits fall back to DefaultListLimit.
func (q *queryUsecase) ListSupply(ctx context.Context, symbol string, limit int) ([]entity.SupplyRecord, error) {
	inst, err := instrument.ParseSymbol(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultListLimit
	}
	return q.repo.Find(ctx, inst.Symbol(), limit)
}
