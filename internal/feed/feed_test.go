package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("sigla_acao;nome\nPETR4;Petrobras\nVALE3;Vale\n\n; \nitub4;Itau\n"))
	}))
	defer srv.Close()

	tickers, err := NewLoader(srv.URL, ";").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(tickers) != 3 {
		t.Fatalf("Load returned %d tickers, want 3", len(tickers))
	}
	if tickers[0].Symbol != "PETR4" || tickers[0].Name != "Petrobras" {
		t.Errorf("first ticker = %+v, want PETR4/Petrobras", tickers[0])
	}
	// Symbols are upper-cased.
	if tickers[2].Symbol != "ITUB4" {
		t.Errorf("third ticker = %q, want ITUB4", tickers[2].Symbol)
	}
}

func TestLoadHeaderByName(t *testing.T) {
	// Symbol column is not first; located by header name.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nome;sigla_acao\nPetrobras;PETR4\n"))
	}))
	defer srv.Close()

	tickers, err := NewLoader(srv.URL, ";").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tickers) != 1 || tickers[0].Symbol != "PETR4" || tickers[0].Name != "Petrobras" {
		t.Errorf("tickers = %+v, want [PETR4/Petrobras]", tickers)
	}
}

func TestLoadMultiByteDelimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("sigla_acao§nome\nPETR4§Petrobras\n"))
	}))
	defer srv.Close()

	tickers, err := NewLoader(srv.URL, "§").Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tickers) != 1 || tickers[0].Symbol != "PETR4" || tickers[0].Name != "Petrobras" {
		t.Errorf("tickers = %+v, want [PETR4/Petrobras]", tickers)
	}
}

func TestLoadUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	_, err := NewLoader(srv.URL, ";").Load(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Load = %v, want ErrUnavailable", err)
	}
}

func TestLoadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewLoader(srv.URL, ";").Load(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Load = %v, want ErrUnavailable", err)
	}
}

func TestLoadEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("sigla_acao;nome\n"))
	}))
	defer srv.Close()

	_, err := NewLoader(srv.URL, ";").Load(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Load = %v, want ErrUnavailable", err)
	}
}
