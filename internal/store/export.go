package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// ---------------------------------------------------------------------------
// Parquet export
// ---------------------------------------------------------------------------

// stockRow is the Parquet schema for an exported cache row. Optional
// sub-documents map onto optional columns so absent values survive a
// round trip as nulls rather than empty strings.
type stockRow struct {
	Symbol          string  `parquet:"symbol"`
	Info            string  `parquet:"info"`
	Recommendations *string `parquet:"recommendations,optional"`
	Dividends       *string `parquet:"dividends,optional"`
	Splits          *string `parquet:"splits,optional"`
	BalanceSheet    *string `parquet:"balance_sheet,optional"`
}

// ExportParquet writes the entire cache to a single Parquet file at path,
// ordered by symbol. The export is a one-way analytical snapshot; the SQLite
// file remains the source of truth.
func ExportParquet(ctx context.Context, s StockStore, path string) (int, error) {
	entries, err := s.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([]stockRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, stockRow{
			Symbol:          e.Symbol,
			Info:            string(e.Bundle.Info),
			Recommendations: optString(e.Bundle.Recommendations),
			Dividends:       optString(e.Bundle.Dividends),
			Splits:          optString(e.Bundle.Splits),
			BalanceSheet:    optString(e.Bundle.BalanceSheet),
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return len(rows), nil
}

func optString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
