package dto

// SupplyResponse は株式供給量のレスポンスDTOです。
type SupplyResponse struct {
	Symbol            string `json:"symbol"`
	Date              string `json:"date"`               // 基準日 (YYYY-MM-DD, UTC+8)
	TotalSupply       int64  `json:"total_supply"`       // 総株式数
	CirculatingSupply int64  `json:"circulating_supply"` // 流通株式数
}
