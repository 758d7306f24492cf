// Package refresh orchestrates a full cache refresh: load the ticker feed,
// negotiate one provider session, and fetch-and-store every symbol with
// per-symbol failure isolation.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"plotos/internal/domain"
	"plotos/internal/store"
	"plotos/internal/util"
	"plotos/internal/yahoo"
)

// sessionAttempts bounds the initial session negotiation retries.
const sessionAttempts = 3

// TickerSource supplies the symbols to refresh.
type TickerSource interface {
	Load(ctx context.Context) ([]domain.TickerRecord, error)
}

// Fetcher is the provider client surface the orchestrator needs.
type Fetcher interface {
	AcquireSession(ctx context.Context) (*yahoo.SessionContext, error)
	Fetch(ctx context.Context, symbol string, session *yahoo.SessionContext) (*domain.StockBundle, error)
}

// Options configures an Orchestrator run.
type Options struct {
	// SkipCached skips symbols that already have a cached row instead of
	// re-fetching them. Default is to refresh everything.
	SkipCached bool

	// Limiter, when set, paces provider requests.
	Limiter *util.RateLimiter

	Logger *slog.Logger
}

// Orchestrator drives the refresh batch. One failed symbol never aborts the
// batch; the outcome of every symbol is accounted for in the report.
type Orchestrator struct {
	source  TickerSource
	fetcher Fetcher
	store   store.StockStore
	opts    Options
	log     *slog.Logger
}

// NewOrchestrator wires a ticker source, a provider client and a store into
// an orchestrator.
func NewOrchestrator(source TickerSource, fetcher Fetcher, st store.StockStore, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		source:  source,
		fetcher: fetcher,
		store:   st,
		opts:    opts,
		log:     log.With("component", "refresh"),
	}
}

// RefreshAll runs one full batch. The ticker feed and the initial session
// negotiation are the only aborting failures; from then on every error is
// scoped to its symbol. Context cancellation stops the batch between symbols
// and returns the report accumulated so far alongside ctx.Err().
func (o *Orchestrator) RefreshAll(ctx context.Context) (*domain.RefreshReport, error) {
	tickers, err := o.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	o.log.Info("ticker feed loaded", "count", len(tickers))

	// Negotiation hiccups at batch start are usually transient; retry a few
	// times before giving up on the whole batch.
	var session *yahoo.SessionContext
	err = util.Retry(ctx, sessionAttempts, util.ExponentialBackoff(time.Second), func() error {
		s, aerr := o.fetcher.AcquireSession(ctx)
		if aerr != nil {
			return aerr
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := &domain.RefreshReport{}
	for _, tk := range tickers {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if o.opts.SkipCached {
			cached, err := o.store.Exists(ctx, tk.Symbol)
			if err != nil {
				report.Failed = append(report.Failed, domain.Failure{Symbol: tk.Symbol, Reason: err.Error()})
				continue
			}
			if cached {
				report.Skipped = append(report.Skipped, tk.Symbol)
				continue
			}
		}

		if o.opts.Limiter != nil {
			if err := o.opts.Limiter.Wait(ctx); err != nil {
				return report, err
			}
		}

		bundle, err := o.fetchWithSessionRecovery(ctx, tk.Symbol, &session)
		if err != nil {
			o.log.Warn("symbol failed", "symbol", tk.Symbol, "error", err)
			report.Failed = append(report.Failed, domain.Failure{Symbol: tk.Symbol, Reason: err.Error()})
			continue
		}

		if err := o.store.Upsert(ctx, tk.Symbol, bundle); err != nil {
			o.log.Warn("store write failed", "symbol", tk.Symbol, "error", err)
			report.Failed = append(report.Failed, domain.Failure{Symbol: tk.Symbol, Reason: err.Error()})
			continue
		}

		report.Updated = append(report.Updated, tk.Symbol)
	}

	o.log.Info("refresh finished",
		"updated", len(report.Updated),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}

// fetchWithSessionRecovery fetches one symbol. When the provider rejects the
// session mid-batch the session is re-negotiated once and the fetch retried;
// a second rejection fails the symbol.
func (o *Orchestrator) fetchWithSessionRecovery(ctx context.Context, symbol string, session **yahoo.SessionContext) (*domain.StockBundle, error) {
	bundle, err := o.fetcher.Fetch(ctx, symbol, *session)
	if err == nil || !authShaped(err) {
		return bundle, err
	}

	o.log.Info("session rejected, re-negotiating", "symbol", symbol)
	fresh, aerr := o.fetcher.AcquireSession(ctx)
	if aerr != nil {
		return nil, aerr
	}
	*session = fresh

	return o.fetcher.Fetch(ctx, symbol, *session)
}

// authShaped reports whether err indicates an expired or rejected session.
func authShaped(err error) bool {
	var rerr *yahoo.RetryableError
	if errors.As(err, &rerr) && rerr.AuthShaped() {
		return true
	}
	var aerr *yahoo.AuthError
	return errors.As(err, &aerr)
}
