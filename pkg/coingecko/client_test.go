package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSimplePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("ids") != "bitcoin,ethereum" || q.Get("vs_currencies") != "usd" || q.Get("include_24hr_change") != "true" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("x-cg-demo-api-key") != "k" {
			t.Errorf("missing api key header")
		}
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":65000.12,"usd_24h_change":-1.5},"ethereum":{"usd":3100,"usd_24h_change":null}}`))
	}))
	defer srv.Close()

	quotes, err := NewClient(srv.URL+"/", "k").SimplePrice(context.Background(), []string{"ethereum", "bitcoin"})
	if err != nil {
		t.Fatalf("SimplePrice: %v", err)
	}
	btc := quotes["bitcoin"]
	if btc.USD.String() != "65000.12" || !btc.Change24h.Valid || btc.Change24h.Decimal.String() != "-1.5" {
		t.Fatalf("bitcoin = %+v", btc)
	}
	eth := quotes["ethereum"]
	if eth.USD.String() != "3100" || eth.Change24h.Valid {
		t.Fatalf("ethereum = %+v", eth)
	}
}

func TestSimplePriceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "").SimplePrice(context.Background(), []string{"bitcoin"}); err == nil {
		t.Fatal("expected an error for HTTP 429")
	}
}
