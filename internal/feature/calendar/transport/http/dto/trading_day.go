package dto

// TradingDayResponse は最近の取引日レスポンスDTOです。
type TradingDayResponse struct {
	Date       string `json:"date"`        // 取引日 (YYYY-MM-DD)
	SessionEnd string `json:"session_end"` // 大引け時刻 (RFC3339, UTC+8)
	Offline    bool   `json:"offline"`     // 曜日判定のみで求めた場合 true
}
