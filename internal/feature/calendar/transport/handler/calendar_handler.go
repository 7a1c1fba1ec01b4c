// Package handler はcalendarフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ashare_sync/internal/feature/calendar/transport/http/dto"
	"ashare_sync/internal/feature/calendar/usecase"
	"ashare_sync/internal/shared/marketclock"

	"github.com/gin-gonic/gin"
)

// TradingDayResolver は最近の取引日を求めるユースケースのインターフェースです。
type TradingDayResolver interface {
	RecentTradingDay(ctx context.Context, at time.Time, offline bool) (time.Time, error)
}

// CalendarHandler は取引日に関するHTTPリクエストを処理します。
type CalendarHandler struct {
	resolver TradingDayResolver
}

// NewCalendarHandler は新しい CalendarHandler を作成します。
func NewCalendarHandler(resolver TradingDayResolver) *CalendarHandler {
	return &CalendarHandler{resolver: resolver}
}

// GetTradingDay は指定日（省略時は現在）以前で最も新しい取引日を返します。
//
// エンドポイント例:
// GET /trading-day?date=2024-01-06&offline=true
func (h *CalendarHandler) GetTradingDay(c *gin.Context) {
	var at time.Time
	if s := c.Query("date"); s != "" {
		d, err := time.ParseInLocation(marketclock.DateLayout, s, marketclock.CST)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		// 指定日の取引も対象に含めるため日付の終わりを基準にする
		at = d.Add(24*time.Hour - time.Second)
	}
	offline, err := strconv.ParseBool(c.DefaultQuery("offline", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offline must be a boolean"})
		return
	}

	day, err := h.resolver.RecentTradingDay(c.Request.Context(), at, offline)
	if err != nil {
		if errors.Is(err, usecase.ErrNoTradingDay) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	day = day.In(marketclock.CST)
	c.JSON(http.StatusOK, dto.TradingDayResponse{
		Date:       day.Format(marketclock.DateLayout),
		SessionEnd: day.Format(time.RFC3339),
		Offline:    offline,
	})
}
