package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAngel_MasterFile(t *testing.T) {
	master := `[
		{"token":"3045","symbol":"SBIN-EQ","name":"SBIN","expiry":"","strike":"-1.000000","lotsize":"1","instrumenttype":"","exch_seg":"NSE","tick_size":"5.000000"},
		{"token":"53825","symbol":"BANKNIFTY25DEC55000CE","name":"BANKNIFTY","expiry":"25DEC2025","strike":"5500000.000000","lotsize":"15","instrumenttype":"OPTIDX","exch_seg":"NFO","tick_size":"5.000000"}
	]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(master))
	}))
	defer srv.Close()

	a := NewAngel(srv.Client())
	a.MasterURL = srv.URL
	a.ExchangeURLs = nil

	res, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0]["exch_seg"] != "NSE" || res.Rows[1]["instrumenttype"] != "OPTIDX" {
		t.Errorf("rows: %v", res.Rows)
	}
}

func TestAngel_MasterSendsAuthHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer jwt-token" {
			t.Errorf("missing auth header")
		}
		if r.Header.Get("X-PrivateKey") != "apikey" {
			t.Errorf("missing api key header")
		}
		w.Write([]byte(`[{"token":"1","symbol":"X-EQ","name":"X","exch_seg":"NSE"}]`))
	}))
	defer srv.Close()

	a := NewAngel(srv.Client())
	a.MasterURL = srv.URL
	a.APIKey = "apikey"
	a.AuthToken = "jwt-token"
	a.ExchangeURLs = nil

	if _, err := a.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}

func TestAngel_ExchangeFallback(t *testing.T) {
	// Master down; two of three exchange files answer, one fails and is
	// skipped without aborting the fallback.
	mux := http.NewServeMux()
	mux.HandleFunc("/master.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/NSE_EQ.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("symbol,name,token,lotsize,tick_size\nSBIN-EQ,SBIN,3045,1,0.05\nINFY-EQ,INFOSYS,1594,1,0.05\n"))
	})
	mux.HandleFunc("/MCX_FO.csv", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/NSE_FO.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("symbol,name,token,lotsize,tick_size\nNIFTY25DECFUT,NIFTY,35001,75,0.05\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := NewAngel(srv.Client())
	a.MasterURL = srv.URL + "/master.json"
	a.ExchangeURLs = []angelExchange{
		{Name: "NSE", URL: srv.URL + "/NSE_EQ.csv"},
		{Name: "MCX", URL: srv.URL + "/MCX_FO.csv"},
		{Name: "NFO", URL: srv.URL + "/NSE_FO.csv"},
	}

	res, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed via fallback: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}

	// Endpoint name becomes exch_seg for fallback rows
	if res.Rows[0]["exch_seg"] != "NSE" {
		t.Errorf("row 0 exch_seg: %q", res.Rows[0]["exch_seg"])
	}
	if res.Rows[2]["exch_seg"] != "NFO" {
		t.Errorf("row 2 exch_seg: %q", res.Rows[2]["exch_seg"])
	}
}

func TestAngel_EverythingDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewAngel(srv.Client())
	a.MasterURL = srv.URL
	a.ExchangeURLs = []angelExchange{{Name: "NSE", URL: srv.URL + "/x"}}

	_, err := a.Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}
