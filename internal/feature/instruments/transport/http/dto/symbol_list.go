// Package dto defines data transfer objects for the instruments HTTP API.
package dto

// SymbolItem represents a symbol in the API response.
type SymbolItem struct {
	Symbol   string  `json:"symbol"`
	Code     string  `json:"code"`
	Exchange string  `json:"exchange"`
	Name     string  `json:"name"`
	PreClose float64 `json:"pre_close"`
}
