// Package handler はinstrumentsフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"

	"ashare_sync/internal/feature/instruments/domain/entity"
	"ashare_sync/internal/feature/instruments/transport/http/dto"

	"github.com/gin-gonic/gin"
)

// SymbolUsecase は銘柄一覧を提供するユースケースです。
type SymbolUsecase interface {
	ListActiveSymbols(ctx context.Context) ([]entity.Symbol, error)
}

// SymbolHandler は /symbols を処理します。
type SymbolHandler struct {
	uc SymbolUsecase
}

func NewSymbolHandler(uc SymbolUsecase) *SymbolHandler {
	return &SymbolHandler{uc: uc}
}

// List は最新ユニバースの銘柄を返します。
//
//	GET /symbols              全銘柄
//	GET /symbols?exchange=SH  上海のみ（"sh" や "1" も可）
//
// exchange が不正なら400、ユースケースの失敗は500です。
func (h *SymbolHandler) List(c *gin.Context) {
	var only string
	if q, ok := c.GetQuery("exchange"); ok {
		m, err := entity.ParseMarket(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		only = m.String()
	}

	symbols, err := h.uc.ListActiveSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	items := make([]dto.SymbolItem, 0, len(symbols))
	for _, s := range symbols {
		if only != "" && s.Exchange != only {
			continue
		}
		items = append(items, toSymbolItem(s))
	}
	c.JSON(http.StatusOK, items)
}

func toSymbolItem(s entity.Symbol) dto.SymbolItem {
	return dto.SymbolItem{
		Symbol:   s.Symbol,
		Code:     s.Code,
		Exchange: s.Exchange,
		Name:     s.Name,
		PreClose: s.PreClose,
	}
}
