// Package domain defines the core types shared across the plotos pipeline:
// ticker records from the feed, stock payload bundles, and refresh reports.
package domain

import "encoding/json"

// TickerRecord identifies one security from the ticker feed. Records are
// read-only inputs; they are loaded fresh on each refresh run and never
// persisted.
type TickerRecord struct {
	Symbol string
	Name   string
}

// StockBundle is the persisted per-symbol payload: the primary quote
// document plus optional enrichment sub-documents. All fields are opaque
// JSON fetched upstream; plotos stores and serves them without interpreting
// their contents. A nil sub-document means the field was absent when the
// bundle was fetched.
type StockBundle struct {
	Info            json.RawMessage `json:"info"`
	Recommendations json.RawMessage `json:"recommendations,omitempty"`
	Dividends       json.RawMessage `json:"dividends,omitempty"`
	Splits          json.RawMessage `json:"splits,omitempty"`
	BalanceSheet    json.RawMessage `json:"balance_sheet,omitempty"`
}

// Failure records one symbol that could not be refreshed and why.
type Failure struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RefreshReport summarises one refresh run. Per-symbol failures are
// aggregated here; they never abort the batch.
type RefreshReport struct {
	Updated []string  `json:"updated"`
	Skipped []string  `json:"skipped"`
	Failed  []Failure `json:"failed"`
}

// FailedSymbols returns the symbols that failed, in report order.
func (r *RefreshReport) FailedSymbols() []string {
	syms := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		syms = append(syms, f.Symbol)
	}
	return syms
}
