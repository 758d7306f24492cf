// Package yahoo implements the session-authenticated Yahoo Finance client:
// cookie+crumb negotiation and per-symbol data fetching with retry.
package yahoo

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"plotos/internal/util"
)

// SessionContext holds the transient authentication material required by the
// data endpoints: the session cookies and the anti-forgery crumb. It is
// acquired once per batch, held in memory only, and owned by the run that
// created it. The provider expires it at its own discretion.
type SessionContext struct {
	Cookies []*http.Cookie
	Crumb   string
}

// Options configures a Client. Endpoint URLs are explicit so tests can point
// at local servers.
type Options struct {
	CookieURL  string
	CrumbURL   string
	QuoteURL   string
	SummaryURL string
	ChartURL   string

	// UserAgent is mandatory: some provider variants reject requests
	// without a browser-like client identification header.
	UserAgent string

	Fields  []string
	Modules []string

	MaxAttempts int
	Backoff     util.Backoff

	// StorePartial keeps the primary payload when enrichment fails instead
	// of classifying the whole fetch as retryable.
	StorePartial bool

	Logger *slog.Logger
}

// Client talks to the upstream provider. It is safe for use by a single
// orchestration run; concurrent runs should each create their own session.
type Client struct {
	http *resty.Client
	opts Options
	log  *slog.Logger
}

// NewClient creates a Client with the given options, filling in defaults for
// the retry policy.
func NewClient(opts Options) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff == nil {
		opts.Backoff = util.ExponentialBackoff(time.Second)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", opts.UserAgent)

	return &Client{
		http: client,
		opts: opts,
		log:  log.With("component", "yahoo"),
	}
}

// AcquireSession performs the two-step negotiation: the cookie endpoint
// issues session cookies (its status code is irrelevant as long as cookies
// arrive), and the crumb endpoint exchanges those cookies for the crumb
// token in its plain-text body. No retry happens here; retry policy belongs
// to the caller.
func (c *Client) AcquireSession(ctx context.Context) (*SessionContext, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.opts.CookieURL)
	if err != nil {
		return nil, &AuthError{Reason: "cookie request failed", Err: err}
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil, &AuthError{Reason: "provider issued no session cookie"}
	}

	resp, err = c.http.R().SetContext(ctx).SetCookies(cookies).Get(c.opts.CrumbURL)
	if err != nil {
		return nil, &AuthError{Reason: "crumb request failed", Err: err}
	}
	if resp.StatusCode() != 200 {
		return nil, &AuthError{Reason: "crumb endpoint returned status " + resp.Status()}
	}

	crumb := strings.TrimSpace(resp.String())
	if crumb == "" || strings.Contains(crumb, "<") {
		// An empty body or an HTML error page means the cookie was rejected.
		return nil, &AuthError{Reason: "invalid crumb body"}
	}

	c.log.Debug("session acquired", "cookies", len(cookies))
	return &SessionContext{Cookies: cookies, Crumb: crumb}, nil
}

// Check verifies connectivity to the provider by performing a full session
// negotiation and discarding the result.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.AcquireSession(ctx)
	return err
}
