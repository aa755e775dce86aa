package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestShoonya_PipeDelimited(t *testing.T) {
	body := strings.Repeat("# master file comment\n", 2) +
		"RELIANCE|Reliance Industries Ltd|EQ|1|0.05|||  |2885|2\n" +
		"TCS|Tata Consultancy Services Ltd|EQ|1|0.05||||11536|2\n" +
		strings.Repeat("padding-to-clear-min-size\n", 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	s := NewShoonya(srv.Client())
	s.Endpoints = []ShoonyaEndpoint{{Name: "NSE", Segment: "EQ", URL: srv.URL}}

	res, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Degraded != "" {
		t.Errorf("live data should not be degraded: %q", res.Degraded)
	}

	// Padding lines have no delimiter and under 3 fields, so only the
	// two real rows survive.
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	r := res.Rows[0]
	if r["symbol"] != "RELIANCE" || r["exchange"] != "NSE" || r["segment"] != "EQ" || r["token"] != "2885" {
		t.Errorf("row 0: %v", r)
	}
}

func TestShoonya_CommaAndTabFallbackDelimiters(t *testing.T) {
	body := "\"D-Mart, Avenue\",Avenue Supermarts,EQ,1,0.05\n" +
		"SBIN\tState Bank of India\tEQ\t1\t0.05\n" +
		strings.Repeat("#pad\n", 30)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	s := NewShoonya(srv.Client())
	s.Endpoints = []ShoonyaEndpoint{{Name: "NSE", Segment: "EQ", URL: srv.URL}}

	res, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0]["symbol"] != "D-Mart, Avenue" {
		t.Errorf("quoted comma field broken: %q", res.Rows[0]["symbol"])
	}
	if res.Rows[1]["symbol"] != "SBIN" || res.Rows[1]["name"] != "State Bank of India" {
		t.Errorf("tab row: %v", res.Rows[1])
	}
}

func TestShoonya_BuiltinFallbackIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewShoonya(srv.Client())
	s.Endpoints = []ShoonyaEndpoint{
		{Name: "NSE", Segment: "EQ", URL: srv.URL + "/NSE"},
		{Name: "BSE", Segment: "EQ", URL: srv.URL + "/BSE"},
	}

	res, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("built-in fallback should not fail: %v", err)
	}
	if res.Degraded == "" {
		t.Fatal("fallback data must carry a degraded note")
	}
	if len(res.Rows) != 5 {
		t.Fatalf("expected 5 built-in rows, got %d", len(res.Rows))
	}
	if res.Rows[0]["symbol"] != "RELIANCE" {
		t.Errorf("row 0: %v", res.Rows[0])
	}
}

func TestSplitDelimited(t *testing.T) {
	cases := []struct {
		line string
		n    int
	}{
		{"a|b|c|d", 4},
		{"a,b,c", 3},
		{"a\tb\tc", 3},
		{"a|b", 1}, // under 3 fields on every delimiter; tab probe wins last
	}
	for _, tc := range cases {
		if got := splitDelimited(tc.line); len(got) != tc.n {
			t.Errorf("splitDelimited(%q) = %v (len %d), want len %d", tc.line, got, len(got), tc.n)
		}
	}
}
