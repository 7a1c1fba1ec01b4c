// Package handler はcandlesフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"

	"ashare_sync/internal/feature/candles/domain/entity"
	"ashare_sync/internal/feature/candles/transport/http/dto"
	"ashare_sync/internal/feature/candles/usecase"

	"github.com/gin-gonic/gin"
)

// CandlesUsecase はハンドラーが必要とする参照系ユースケースです。
type CandlesUsecase interface {
	GetCandles(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
}

// CandlesHandler は /candles/:symbol を処理します。
type CandlesHandler struct {
	uc CandlesUsecase
}

func NewCandlesHandler(uc CandlesUsecase) *CandlesHandler {
	return &CandlesHandler{uc: uc}
}

// Get はローソク足を新しい順にJSONで返します。
//
//	GET /candles/000001.SZ?interval=1d&outputsize=200
//
// 銘柄・間隔・outputsize が不正なら400、保存先の失敗は502です。
func (h *CandlesHandler) Get(c *gin.Context) {
	var q dto.CandlesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid outputsize"})
		return
	}

	candles, err := h.uc.GetCandles(c.Request.Context(), c.Param("symbol"), q.Interval, q.OutputSize)
	if err != nil {
		c.JSON(statusFor(err), dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewCandleResponses(candles))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrUnsupportedInterval), errors.Is(err, usecase.ErrInvalidSymbol):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
