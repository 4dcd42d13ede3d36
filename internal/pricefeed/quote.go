package pricefeed

import (
	"strings"
	"time"
)

const (
	SourceCoinMarketCap = "coinmarketcap"
	SourceSynthetic     = "synthetic"
)

// Quote is a fiat price snapshot for one token symbol.
type Quote struct {
	Symbol      string    `json:"symbol"`
	Currency    string    `json:"currency"`
	Price       float64   `json:"price"`
	Change24h   float64   `json:"change_24h"`
	Volume24h   *float64  `json:"volume_24h,omitempty"`
	MarketCap   *float64  `json:"market_cap,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	Source      string    `json:"source"`
	Fallback    bool      `json:"fallback"`
}

// NormalizeSymbol uppercases and trims a user supplied ticker, dropping a
// leading "$" ("$eth" -> "ETH").
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(symbol), "$"))
}
