package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/go-resty/resty/v2"

	"plotos/internal/domain"
)

// Fetch retrieves the stock bundle for one symbol using the given session.
// It retries transient failures up to the configured attempt budget with the
// configured backoff, then returns a *FetchError scoped to the symbol.
// Auth-shaped failures abort the retry loop immediately so the caller can
// re-negotiate the session instead of burning attempts.
func (c *Client) Fetch(ctx context.Context, symbol string, session *SessionContext) (*domain.StockBundle, error) {
	var lastErr error

	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		bundle, err := c.fetchOnce(ctx, symbol, session)
		if err == nil {
			return bundle, nil
		}

		var rerr *RetryableError
		if errors.As(err, &rerr) && rerr.AuthShaped() {
			return nil, err
		}

		c.log.Debug("fetch attempt failed",
			"symbol", symbol,
			"attempt", attempt+1,
			"error", err,
		)
		lastErr = err

		if attempt < c.opts.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.Backoff(attempt)):
			}
		}
	}

	return nil, &FetchError{Symbol: symbol, Attempts: c.opts.MaxAttempts, Err: lastErr}
}

// fetchOnce performs one full fetch: the primary quote payload plus the
// enrichment sub-documents. Enrichment failures are folded into the same
// retryable classification unless StorePartial is set, in which case the
// bundle is returned with whatever sub-documents were obtained.
func (c *Client) fetchOnce(ctx context.Context, symbol string, session *SessionContext) (*domain.StockBundle, error) {
	info, err := c.fetchQuote(ctx, symbol, session)
	if err != nil {
		return nil, err
	}

	bundle := &domain.StockBundle{Info: info}
	if err := c.enrich(ctx, symbol, session, bundle); err != nil {
		if c.opts.StorePartial {
			c.log.Warn("enrichment failed, keeping primary payload",
				"symbol", symbol, "error", err)
			return bundle, nil
		}
		return nil, err
	}
	return bundle, nil
}

// fetchQuote requests the quote endpoint and extracts the first entry of the
// quoteResponse result list.
func (c *Client) fetchQuote(ctx context.Context, symbol string, session *SessionContext) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetCookies(session.Cookies).
		SetQueryParams(map[string]string{
			"symbols": symbol,
			"fields":  strings.Join(c.opts.Fields, ","),
			"crumb":   session.Crumb,
		}).
		Get(c.opts.QuoteURL)
	if rerr := classify(resp, err, "quote"); rerr != nil {
		return nil, rerr
	}

	result, err := firstResult(resp.Body(), "$.quoteResponse.result")
	if err != nil {
		// A 200 without the wrapper means "not yet available", not
		// permanently absent.
		return nil, &RetryableError{Reason: "quote response missing result wrapper", Err: err}
	}
	return json.Marshal(result)
}

// enrich fills the optional sub-documents through the ticker-oriented
// endpoints: quoteSummary modules for recommendations and balance sheet,
// chart events for dividend and split history.
func (c *Client) enrich(ctx context.Context, symbol string, session *SessionContext, bundle *domain.StockBundle) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetCookies(session.Cookies).
		SetQueryParams(map[string]string{
			"modules": strings.Join(c.opts.Modules, ","),
			"crumb":   session.Crumb,
		}).
		Get(c.opts.SummaryURL + "/" + symbol)
	if rerr := classify(resp, err, "quoteSummary"); rerr != nil {
		return rerr
	}

	summary, err := firstResult(resp.Body(), "$.quoteSummary.result")
	if err != nil {
		return &RetryableError{Reason: "quoteSummary response missing result wrapper", Err: err}
	}
	if v, ok := summary["recommendationTrend"]; ok {
		if bundle.Recommendations, err = json.Marshal(v); err != nil {
			return &RetryableError{Reason: "encoding recommendations", Err: err}
		}
	}
	if v, ok := summary["balanceSheetHistory"]; ok {
		if bundle.BalanceSheet, err = json.Marshal(v); err != nil {
			return &RetryableError{Reason: "encoding balance sheet", Err: err}
		}
	}

	resp, err = c.http.R().
		SetContext(ctx).
		SetCookies(session.Cookies).
		SetQueryParams(map[string]string{
			"range":    "max",
			"interval": "1mo",
			"events":   "div,split",
		}).
		Get(c.opts.ChartURL + "/" + symbol)
	if rerr := classify(resp, err, "chart"); rerr != nil {
		return rerr
	}

	chart, err := firstResult(resp.Body(), "$.chart.result")
	if err != nil {
		return &RetryableError{Reason: "chart response missing result wrapper", Err: err}
	}
	// Absent events are legitimate: not every security pays dividends or
	// has split.
	events, _ := chart["events"].(map[string]any)
	if v, ok := events["dividends"]; ok {
		if bundle.Dividends, err = json.Marshal(v); err != nil {
			return &RetryableError{Reason: "encoding dividends", Err: err}
		}
	}
	if v, ok := events["splits"]; ok {
		if bundle.Splits, err = json.Marshal(v); err != nil {
			return &RetryableError{Reason: "encoding splits", Err: err}
		}
	}
	return nil
}

// classify maps a transport error or HTTP status onto the retryable error
// taxonomy. It returns nil for a 200 response.
func classify(resp *resty.Response, err error, what string) *RetryableError {
	if err != nil {
		return &RetryableError{Reason: what + " request failed", Err: err}
	}
	switch code := resp.StatusCode(); {
	case code == 429:
		return &RetryableError{Status: 429, Reason: what + " rate limited"}
	case code == 401 || code == 403:
		return &RetryableError{Status: code, Reason: what + " rejected session"}
	case code != 200:
		return &RetryableError{Status: code, Reason: what + " returned unexpected status"}
	}
	return nil
}

// firstResult decodes body and returns the first element of the result list
// addressed by path.
func firstResult(body []byte, path string) (map[string]any, error) {
	var jobj any
	if err := json.Unmarshal(body, &jobj); err != nil {
		return nil, err
	}

	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return nil, err
	}
	list, ok := jval.([]any)
	if !ok || len(list) == 0 {
		return nil, errors.New("empty result list")
	}
	m, ok := list[0].(map[string]any)
	if !ok {
		return nil, errors.New("result entry is not an object")
	}
	return m, nil
}
