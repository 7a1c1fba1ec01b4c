// Package handler はsupplyフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"ashare_sync/internal/feature/supply/domain/entity"
	"ashare_sync/internal/feature/supply/transport/http/dto"
	"ashare_sync/internal/feature/supply/usecase"
	"ashare_sync/internal/shared/marketclock"

	"github.com/gin-gonic/gin"
)

// SupplyUsecase は株式供給量の参照ユースケースです。
type SupplyUsecase interface {
	ListSupply(ctx context.Context, symbol string, limit int) ([]entity.SupplyRecord, error)
}

type SupplyHandler struct {
	uc SupplyUsecase
}

func NewSupplyHandler(uc SupplyUsecase) *SupplyHandler {
	return &SupplyHandler{uc: uc}
}

// ListSupply は銘柄の株式供給量を新しい順に返します。
//
// エンドポイント例:
// GET /supply/000001.SZ?limit=20
func (h *SupplyHandler) ListSupply(c *gin.Context) {
	symbol := c.Param("symbol")
	// 不正な値は0となり、usecase側でデフォルト値に置き換えられる
	limit, _ := strconv.Atoi(c.Query("limit"))

	records, err := h.uc.ListSupply(c.Request.Context(), symbol, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, usecase.ErrInvalidSymbol) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	out := make([]dto.SupplyResponse, 0, len(records))
	for _, r := range records {
		out = append(out, dto.SupplyResponse{
			Symbol:            r.Instrument.Symbol(),
			Date:              r.AsOf.In(marketclock.CST).Format(marketclock.DateLayout),
			TotalSupply:       r.TotalSupply,
			CirculatingSupply: r.CirculatingSupply,
		})
	}
	c.JSON(http.StatusOK, out)
}
