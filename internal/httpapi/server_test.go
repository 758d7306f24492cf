package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"plotos/internal/domain"
	"plotos/internal/store"
)

type stubRefresher struct {
	report *domain.RefreshReport
	err    error
}

func (s *stubRefresher) RefreshAll(context.Context) (*domain.RefreshReport, error) {
	return s.report, s.err
}

type stubTickers struct {
	records []domain.TickerRecord
	err     error
}

func (s *stubTickers) Load(context.Context) ([]domain.TickerRecord, error) {
	return s.records, s.err
}

type stubChecker struct{ err error }

func (s *stubChecker) Check(context.Context) error { return s.err }

func newTestServer(t *testing.T, refresher Refresher, tickers TickerSource, checker Checker) (*Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "plotos.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewServer(st, refresher, tickers, checker, nil), st
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, nil, &stubChecker{})

	rec := doRequest(t, s, "GET", "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Status != "ok" || resp.Provider != "ok" {
		t.Errorf("resp = %+v, want ok/ok", resp)
	}
}

func TestHealthDegraded(t *testing.T) {
	s, _ := newTestServer(t, nil, nil, &stubChecker{err: errors.New("provider down")})

	rec := doRequest(t, s, "GET", "/api/health")
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
}

func TestGetStock(t *testing.T) {
	s, st := newTestServer(t, nil, nil, nil)
	bundle := &domain.StockBundle{Info: json.RawMessage(`{"symbol":"PETR4"}`)}
	if err := st.Upsert(context.Background(), "PETR4", bundle); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// The handler upper-cases the path symbol before the lookup.
	rec := doRequest(t, s, "GET", "/api/stocks/petr4")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var resp StockResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Symbol != "PETR4" || string(resp.Bundle.Info) != `{"symbol":"PETR4"}` {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetStockNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil, nil, nil)

	rec := doRequest(t, s, "GET", "/api/stocks/NOPE")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListStocks(t *testing.T) {
	s, st := newTestServer(t, nil, nil, nil)
	for _, sym := range []string{"VALE3", "PETR4"} {
		if err := st.Upsert(context.Background(), sym,
			&domain.StockBundle{Info: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	rec := doRequest(t, s, "GET", "/api/stocks")
	var resp StocksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Count != 2 || resp.Symbols[0] != "PETR4" {
		t.Errorf("resp = %+v, want 2 symbols ordered", resp)
	}
}

func TestTickers(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubTickers{records: []domain.TickerRecord{
		{Symbol: "PETR4", Name: "Petrobras"},
	}}, nil)

	rec := doRequest(t, s, "GET", "/api/tickers")
	var resp TickersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Count != 1 || resp.Tickers[0].Symbol != "PETR4" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestTickersFeedDown(t *testing.T) {
	s, _ := newTestServer(t, nil, &stubTickers{err: errors.New("unreachable")}, nil)

	rec := doRequest(t, s, "GET", "/api/tickers")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	s, _ := newTestServer(t, &stubRefresher{report: &domain.RefreshReport{
		Updated: []string{"PETR4"},
		Failed:  []domain.Failure{{Symbol: "VALE3", Reason: "rate limited"}},
	}}, nil, nil)

	rec := doRequest(t, s, "POST", "/api/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var report domain.RefreshReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(report.Updated) != 1 || len(report.Failed) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRefreshNotConfigured(t *testing.T) {
	s, _ := newTestServer(t, nil, nil, nil)

	rec := doRequest(t, s, "POST", "/api/refresh")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSnapshot(t *testing.T) {
	s, st := newTestServer(t, nil, nil, nil)
	if err := st.Upsert(context.Background(), "PETR4",
		&domain.StockBundle{Info: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec := doRequest(t, s, "GET", "/api/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Body.Len() == 0 {
		t.Error("snapshot body is empty")
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Error("Content-Disposition header missing")
	}
}
