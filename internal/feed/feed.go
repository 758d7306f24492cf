// Package feed loads the ticker list from a remotely hosted delimited file.
package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"plotos/internal/domain"
)

// ErrUnavailable marks the ticker feed as unreachable or unparseable. This
// is fatal to a refresh batch: without a ticker list there is nothing to
// iterate.
var ErrUnavailable = errors.New("ticker feed unavailable")

// Loader fetches and parses the remote ticker feed.
type Loader struct {
	client    *resty.Client
	url       string
	delimiter rune
}

// NewLoader creates a Loader for the given feed URL. delimiter selects the
// column separator; an empty string means ";" (the feed's native format).
func NewLoader(url, delimiter string) *Loader {
	sep := ';'
	if delimiter != "" {
		sep, _ = utf8.DecodeRuneInString(delimiter)
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &Loader{
		client:    client,
		url:       url,
		delimiter: sep,
	}
}

// Load fetches the feed and parses it into ticker records. The first row is
// a header; the symbol column is matched by name ("sigla_acao") and falls
// back to the first column, the display-name column falls back to the
// second. Rows with an empty symbol are skipped; any transport or parse
// failure wraps ErrUnavailable.
func (l *Loader) Load(ctx context.Context) ([]domain.TickerRecord, error) {
	resp, err := l.client.R().SetContext(ctx).Get(l.url)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrUnavailable, l.url, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: fetching %s: status %d", ErrUnavailable, l.url, resp.StatusCode())
	}

	r := csv.NewReader(strings.NewReader(resp.String()))
	r.Comma = l.delimiter
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing feed: %v", ErrUnavailable, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: feed has no data rows", ErrUnavailable)
	}

	symCol, nameCol := columnIndexes(rows[0])

	records := make([]domain.TickerRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if symCol >= len(row) {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[symCol]))
		if sym == "" {
			continue
		}
		name := ""
		if nameCol >= 0 && nameCol < len(row) {
			name = strings.TrimSpace(row[nameCol])
		}
		records = append(records, domain.TickerRecord{Symbol: sym, Name: name})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: feed yielded no tickers", ErrUnavailable)
	}
	return records, nil
}

// columnIndexes locates the symbol and display-name columns from the header
// row. Defaults: symbol in column 0, name in column 1 (or absent).
func columnIndexes(header []string) (symCol, nameCol int) {
	symCol = 0
	nameCol = -1
	if len(header) > 1 {
		nameCol = 1
	}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "sigla_acao", "symbol", "ticker":
			symCol = i
		case "nome", "nome_acao", "name":
			nameCol = i
		}
	}
	return symCol, nameCol
}
