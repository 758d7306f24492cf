// Package httpapi exposes the cache and the refresh pipeline over a small
// JSON HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"plotos/internal/domain"
	"plotos/internal/store"
)

// Refresher runs one refresh batch.
type Refresher interface {
	RefreshAll(ctx context.Context) (*domain.RefreshReport, error)
}

// TickerSource supplies the current ticker universe.
type TickerSource interface {
	Load(ctx context.Context) ([]domain.TickerRecord, error)
}

// Checker verifies connectivity to the upstream provider.
type Checker interface {
	Check(ctx context.Context) error
}

// Snapshotter produces a byte-level copy of the database file.
type Snapshotter interface {
	Snapshot(ctx context.Context, dst string) error
}

// Server serves the plotos HTTP API.
type Server struct {
	store     store.StockStore
	refresher Refresher
	tickers   TickerSource
	checker   Checker
	log       *slog.Logger

	// refreshMu serializes refresh runs; a second request while one is in
	// flight is rejected rather than queued.
	refreshMu sync.Mutex
}

// NewServer creates the API server. refresher, tickers and checker may be nil
// when the corresponding endpoints are not wanted; they then answer 503.
func NewServer(st store.StockStore, refresher Refresher, tickers TickerSource, checker Checker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     st,
		refresher: refresher,
		tickers:   tickers,
		checker:   checker,
		log:       log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/tickers", s.handleTickers)
	mux.HandleFunc("GET /api/stocks", s.handleListStocks)
	mux.HandleFunc("GET /api/stocks/{symbol}", s.handleGetStock)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.checker != nil {
		if err := s.checker.Check(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Provider = err.Error()
		} else {
			resp.Provider = "ok"
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	if s.tickers == nil {
		writeError(w, http.StatusServiceUnavailable, "ticker feed not configured")
		return
	}

	records, err := s.tickers.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "ticker feed unavailable")
		return
	}

	out := make([]TickerJSON, 0, len(records))
	for _, tk := range records {
		out = append(out, TickerJSON{Symbol: tk.Symbol, Name: tk.Name})
	}
	writeJSON(w, TickersResponse{Tickers: out, Count: len(out)})
}

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing cache failed")
		return
	}

	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}
	writeJSON(w, StocksResponse{Symbols: symbols, Count: len(symbols)})
}

func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	bundle, err := s.store.Get(r.Context(), symbol)
	switch {
	case err == nil:
		writeJSON(w, StockResponse{Symbol: symbol, Bundle: bundle})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "symbol not cached: "+symbol)
	default:
		s.log.Error("reading cache", "symbol", symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "reading cache failed")
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not configured")
		return
	}
	if !s.refreshMu.TryLock() {
		writeError(w, http.StatusConflict, "refresh already running")
		return
	}
	defer s.refreshMu.Unlock()

	report, err := s.refresher.RefreshAll(r.Context())
	if err != nil {
		s.log.Error("refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, report)
}

// handleSnapshot streams a consistent copy of the database file for download.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.(Snapshotter)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "snapshot not supported by this store")
		return
	}

	tmp, err := os.MkdirTemp("", "plotos-snapshot-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "creating snapshot failed")
		return
	}
	defer os.RemoveAll(tmp)

	dst := filepath.Join(tmp, "plotos.db")
	if err := snap.Snapshot(r.Context(), dst); err != nil {
		s.log.Error("snapshot failed", "error", err)
		writeError(w, http.StatusInternalServerError, "creating snapshot failed")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="plotos.db"`)
	http.ServeFile(w, r, dst)
}
