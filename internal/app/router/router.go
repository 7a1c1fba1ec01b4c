package router

import (
	"github.com/gin-gonic/gin"

	calendarhandler "ashare_sync/internal/feature/calendar/transport/handler"
	candleshandler "ashare_sync/internal/feature/candles/transport/handler"
	instrumentshandler "ashare_sync/internal/feature/instruments/transport/handler"
	supplyhandler "ashare_sync/internal/feature/supply/transport/handler"
)

// Handlers は読み取りAPIが公開するハンドラーの一覧です。
type Handlers struct {
	Health   gin.HandlerFunc
	Symbols  *instrumentshandler.SymbolHandler
	Candles  *candleshandler.CandlesHandler
	Supply   *supplyhandler.SupplyHandler
	Calendar *calendarhandler.CalendarHandler
}

func NewRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 導通確認用
	r.GET("/healthz", h.Health)
	r.HEAD("/healthz", h.Health)
	r.OPTIONS("/healthz", h.Health)

	// 銘柄一覧
	r.GET("/symbols", h.Symbols.List)
	// ローソク足（例: /candles/000001.SZ?interval=1d&outputsize=200）
	r.GET("/candles/:symbol", h.Candles.Get)
	// 発行済株式数の履歴
	r.GET("/supply/:symbol", h.Supply.ListSupply)
	// 直近の取引日
	r.GET("/trading-day", h.Calendar.GetTradingDay)

	return r
}
