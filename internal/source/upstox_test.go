package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const upstoxHeader = "instrument_key,exchange,trading_symbol,name,lot_size,tick_size,segment,instrument_type"

// upstoxCSV builds a CSV body of n data rows with the shared header.
func upstoxCSV(exchange string, n int) string {
	var b strings.Builder
	b.WriteString(upstoxHeader + "\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s_SYM%d,%s,SYM%d,Symbol %d Ltd,1,0.05,%s,EQ\n", exchange, i, exchange, i, i, exchange)
	}
	return b.String()
}

func TestUpstox_CombinedEndpoint(t *testing.T) {
	body := upstoxCSV("NSE", 50) // comfortably above MinSize
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	u := NewUpstox(srv.Client(), "")
	u.CompleteURL = srv.URL
	u.ExchangeURLs = nil

	res, err := u.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Rows) != 50 {
		t.Fatalf("expected 50 rows, got %d", len(res.Rows))
	}
	if res.Rows[0]["trading_symbol"] != "SYM0" {
		t.Errorf("row 0: %v", res.Rows[0])
	}
}

func TestUpstox_FallbackOnUndersizedPrimary(t *testing.T) {
	// Primary answers with a 10-byte body; fallback set together clears
	// the threshold. Records must come from the fallback path.
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("too small\n"))
	}))
	defer primary.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/NSE_EQ.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(upstoxCSV("NSE", 30)))
	})
	mux.HandleFunc("/BSE_EQ.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(upstoxCSV("BSE", 30)))
	})
	mux.HandleFunc("/MCX_FO.csv", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway) // individually skipped
	})
	fallback := httptest.NewServer(mux)
	defer fallback.Close()

	u := NewUpstox(fallback.Client(), "")
	u.CompleteURL = primary.URL
	u.ExchangeURLs = []string{
		fallback.URL + "/NSE_EQ.csv",
		fallback.URL + "/BSE_EQ.csv",
		fallback.URL + "/MCX_FO.csv",
	}

	res, err := u.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed via fallback: %v", err)
	}
	if len(res.Rows) != 60 {
		t.Fatalf("expected 60 rows from fallback, got %d", len(res.Rows))
	}

	// Header contributed once, by the first successful endpoint
	exchanges := map[string]int{}
	for _, row := range res.Rows {
		exchanges[row["exchange"]]++
	}
	if exchanges["NSE"] != 30 || exchanges["BSE"] != 30 {
		t.Errorf("exchange distribution: %v", exchanges)
	}
}

func TestUpstox_AllEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewUpstox(srv.Client(), "")
	u.CompleteURL = srv.URL
	u.ExchangeURLs = []string{srv.URL + "/a", srv.URL + "/b"}

	_, err := u.Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData in chain, got %v", err)
	}
}

func TestUpstox_JSONContentType(t *testing.T) {
	jsonBody := `{"data":[
		{"instrument_key":"NSE_EQ|INE009A01021","exchange":"NSE","trading_symbol":"INFY","name":"INFOSYS","lot_size":1,"tick_size":0.05,"segment":"NSE_EQ","instrument_type":"EQ"},
		{"instrument_key":"NSE_EQ|INE002A01018","exchange":"NSE","trading_symbol":"RELIANCE","name":"RELIANCE","lot_size":1,"tick_size":0.05,"segment":"NSE_EQ","instrument_type":"EQ"}
	]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(jsonBody))
	}))
	defer srv.Close()

	u := NewUpstox(srv.Client(), "tok123")
	u.CompleteURL = srv.URL
	u.ExchangeURLs = nil

	res, err := u.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0]["lot_size"] != "1" {
		t.Errorf("numeric json field should render without decimals: %q", res.Rows[0]["lot_size"])
	}
	if res.Rows[1]["instrument_key"] != "NSE_EQ|INE002A01018" {
		t.Errorf("row 1: %v", res.Rows[1])
	}
}

func TestUpstox_BareJSONArray(t *testing.T) {
	rows, err := upstoxJSONRows([]byte(`[{"trading_symbol":"TCS","exchange":"NSE","tick_size":0.5}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0]["tick_size"] != "0.5" {
		t.Errorf("rows: %v", rows)
	}
}
