package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestSplitCSVLine(t *testing.T) {
	cases := []struct {
		line string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{`"a,b",c`, []string{"a,b", "c"}},
		{`"O'Brien, ""Ltd""",NSE`, []string{`O'Brien, "Ltd"`, "NSE"}},
		{`plain`, []string{"plain"}},
		{`a,,c`, []string{"a", "", "c"}},
		{`"trailing quote field"`, []string{"trailing quote field"}},
	}

	for _, tc := range cases {
		got := SplitCSVLine(tc.line)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitCSVLine(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestParseCSV_EmbeddedNewline(t *testing.T) {
	body := []byte("symbol,name\nABC,\"Multi\nLine Ltd\"\n")
	headers, data, err := parseCSV(body)
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(headers) != 2 || len(data) != 1 {
		t.Fatalf("unexpected shape: headers=%v rows=%d", headers, len(data))
	}
	if data[0][1] != "Multi\nLine Ltd" {
		t.Errorf("embedded newline lost: %q", data[0][1])
	}
}

func TestZerodha_FetchAndSkipShortRows(t *testing.T) {
	csvBody := "instrument_token,exchange_token,tradingsymbol,name,exchange,segment,instrument_type,lot_size,tick_size\n" +
		"408065,1594,INFY,INFOSYS,NSE,NSE,EQ,1,0.05\n" +
		"SHORT,ROW\n" +
		"738561,2885,RELIANCE,RELIANCE INDUSTRIES,NSE,NSE,EQ,1,0.05\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csvBody))
	}))
	defer srv.Close()

	z := NewZerodha(srv.Client())
	z.URL = srv.URL

	res, err := z.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Degraded != "" {
		t.Errorf("unexpected degraded note: %q", res.Degraded)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows (short row skipped), got %d", len(res.Rows))
	}
	if res.Rows[0]["tradingsymbol"] != "INFY" {
		t.Errorf("row 0: %v", res.Rows[0])
	}
	if res.Rows[1]["instrument_token"] != "738561" {
		t.Errorf("row 1 token: %v", res.Rows[1])
	}
}

func TestZerodha_EndpointDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	z := NewZerodha(srv.Client())
	z.URL = srv.URL
	z.Timeout = 2 * time.Second

	_, err := z.Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Broker != "zerodha" {
		t.Errorf("broker: %q", fe.Broker)
	}
}
