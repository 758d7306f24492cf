package httpapi

import "plotos/internal/domain"

// HealthResponse reports service and provider health.
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
}

// TickerJSON is one feed entry.
type TickerJSON struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
}

// TickersResponse lists the current ticker universe.
type TickersResponse struct {
	Tickers []TickerJSON `json:"tickers"`
	Count   int          `json:"count"`
}

// StocksResponse lists the cached symbols.
type StocksResponse struct {
	Symbols []string `json:"symbols"`
	Count   int      `json:"count"`
}

// StockResponse carries one cached bundle.
type StockResponse struct {
	Symbol string              `json:"symbol"`
	Bundle *domain.StockBundle `json:"bundle"`
}
