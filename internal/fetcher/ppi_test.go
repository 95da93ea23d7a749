package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"caucion-rate-alerts/internal/rates"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ppiServer(t *testing.T, prices map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "LoginApi") {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"accessToken": "test-token",
				"expires_in":  900,
			})
			return
		}

		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		ticker := r.URL.Query().Get("ticker")
		price, ok := prices[ticker]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ticker": ticker, "price": price})
	}))
}

func TestPPIFetchSuccess(t *testing.T) {
	srv := ppiServer(t, map[string]float64{
		"PESOS1": 35.50,
		"PESOS2": 36.20,
		"PESOS3": 36.80,
	})
	defer srv.Close()

	ppi := NewPPI(PPIOptions{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "priv",
		Timeout:    time.Second,
	}, noopLogger())

	snap, err := ppi.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if snap.Len() != 3 {
		t.Fatalf("expected 3 tenors, got %d", snap.Len())
	}

	d1, ok := snap.Rate(rates.TenorD1)
	if !ok {
		t.Fatal("24h tenor missing")
	}
	if d1.String() != "35.5" {
		t.Fatalf("unexpected 24h rate: %s", d1.String())
	}
}

func TestPPIFetchSkipsUnquotedTenor(t *testing.T) {
	srv := ppiServer(t, map[string]float64{
		"PESOS1": 35.50,
		"PESOS2": 36.20,
	})
	defer srv.Close()

	ppi := NewPPI(PPIOptions{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "priv",
		Timeout:    time.Second,
		Tenors:     []rates.Tenor{rates.TenorD1, rates.TenorD2, rates.TenorD7},
	}, noopLogger())

	snap, err := ppi.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch should tolerate an unquoted tenor: %v", err)
	}
	if _, ok := snap.Rate(rates.TenorD7); ok {
		t.Fatal("7-day tenor should be absent, not zero")
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 tenors, got %d", snap.Len())
	}
}

func TestPPIFetchAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ppi := NewPPI(PPIOptions{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "bad",
		Timeout:    time.Second,
	}, noopLogger())

	_, err := ppi.Fetch(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestPPIFetchMissingCredentials(t *testing.T) {
	ppi := NewPPI(PPIOptions{BaseURL: "http://localhost"}, noopLogger())
	if _, err := ppi.Fetch(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("missing keys should map to ErrAuth, got %v", err)
	}
}

func TestPPIFetchAllTenorsMissing(t *testing.T) {
	srv := ppiServer(t, map[string]float64{})
	defer srv.Close()

	ppi := NewPPI(PPIOptions{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "priv",
		Timeout:    time.Second,
	}, noopLogger())

	if _, err := ppi.Fetch(context.Background()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty snapshot should be an error, got %v", err)
	}
}

func TestPPIFetchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "LoginApi") {
			_, _ = w.Write([]byte("not json"))
			return
		}
	}))
	defer srv.Close()

	ppi := NewPPI(PPIOptions{
		BaseURL:    srv.URL,
		PublicKey:  "pub",
		PrivateKey: "priv",
		Timeout:    time.Second,
	}, noopLogger())

	if _, err := ppi.Fetch(context.Background()); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
