package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/normalize"
)

const angelMasterURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

// angelExchange names one per-exchange CSV fallback file.
type angelExchange struct {
	Name string
	URL  string
}

var angelExchangeURLs = []angelExchange{
	{Name: "NSE", URL: "https://margincalculator.angelbroking.com/OpenAPI_File/files/NSE_EQ.csv"},
	{Name: "BSE", URL: "https://margincalculator.angelbroking.com/OpenAPI_File/files/BSE_EQ.csv"},
	{Name: "NFO", URL: "https://margincalculator.angelbroking.com/OpenAPI_File/files/NSE_FO.csv"},
	{Name: "MCX", URL: "https://margincalculator.angelbroking.com/OpenAPI_File/files/MCX_FO.csv"},
}

// angelMapping: the scrip master keys exchange and segment on the same
// exch_seg field; the CSV fallback injects exch_seg per endpoint.
var angelMapping = normalize.Mapping{
	Symbol:         []string{"symbol", "trading_symbol"},
	Name:           []string{"name", "company_name"},
	Exchange:       []string{"exch_seg"},
	Segment:        []string{"exch_seg"},
	InstrumentType: []string{"instrumenttype", "instrument_type"},
	LotSize:        []string{"lotsize", "lot_size"},
	TickSize:       []string{"tick_size"},
	Expiry:         []string{"expiry"},
	Strike:         []string{"strike"},
	OptionType:     []string{"option_type"},
	BrokerToken:    []string{"token", "symboltoken"},
	BrokerExchange: []string{"exch_seg"},
	ISIN:           []string{"isin"},
	SymbolToken:    []string{"symboltoken"},
	Precision:      []string{"precision"},
}

// Angel fetches the Angel One OpenAPI scrip master. Primary source is a
// single JSON file; on failure it falls back to four per-exchange CSVs,
// each independently best-effort.
type Angel struct {
	MasterURL    string
	ExchangeURLs []angelExchange

	// Optional SmartAPI session. When set the master fetch carries the
	// authenticated headers (the file is public, but sessions avoid the
	// aggressive rate limits on the margin-calculator host).
	APIKey    string
	AuthToken string

	MasterTimeout   time.Duration
	ExchangeTimeout time.Duration

	client *http.Client
}

// NewAngel creates the Angel adapter with production defaults.
func NewAngel(client *http.Client) *Angel {
	if client == nil {
		client = defaultClient()
	}
	return &Angel{
		MasterURL:       angelMasterURL,
		ExchangeURLs:    angelExchangeURLs,
		MasterTimeout:   60 * time.Second,
		ExchangeTimeout: 30 * time.Second,
		client:          client,
	}
}

func (a *Angel) Broker() string             { return model.BrokerAngel }
func (a *Angel) Mapping() normalize.Mapping { return angelMapping }

func (a *Angel) Fetch(ctx context.Context) (FetchResult, error) {
	rows, err := a.fetchMaster(ctx)
	if err != nil {
		slog.Warn("angel master file failed, trying per-exchange files", "err", err)
		rows = a.fetchExchangeFallback(ctx)
	}

	if len(rows) == 0 {
		if err == nil {
			err = fmt.Errorf("master and all exchange files empty")
		}
		return FetchResult{}, &FetchError{Broker: a.Broker(), Err: err}
	}

	slog.Info("fetched angel instruments", "rows", len(rows))
	return FetchResult{Rows: rows}, nil
}

func (a *Angel) fetchMaster(ctx context.Context) ([]normalize.Row, error) {
	var headers map[string]string
	if a.AuthToken != "" {
		headers = map[string]string{
			"Authorization": "Bearer " + a.AuthToken,
			"X-PrivateKey":  a.APIKey,
		}
	}

	body, _, err := fetchBody(ctx, a.client, a.MasterURL, a.MasterTimeout, headers)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse scrip master: %w", err)
	}

	rows := make([]normalize.Row, 0, len(items))
	for _, item := range items {
		row := make(normalize.Row, len(item))
		for k, v := range item {
			row[k] = jsonString(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fetchExchangeFallback pulls the four per-exchange CSVs. A failing
// exchange file is logged and skipped, not fatal; the endpoint name
// becomes both exchange and segment for its rows.
func (a *Angel) fetchExchangeFallback(ctx context.Context) []normalize.Row {
	var rows []normalize.Row

	for _, exch := range a.ExchangeURLs {
		body, _, err := fetchBody(ctx, a.client, exch.URL, a.ExchangeTimeout, nil)
		if err != nil {
			slog.Warn("angel exchange file failed", "exchange", exch.Name, "err", err)
			continue
		}

		headers, data, err := parseCSV(body)
		if err != nil {
			slog.Warn("angel exchange file unparsable", "exchange", exch.Name, "err", err)
			continue
		}

		exchRows := csvRows(headers, data, len(headers))
		for _, row := range exchRows {
			row["exch_seg"] = exch.Name
		}
		rows = append(rows, exchRows...)
		slog.Info("angel exchange file merged", "exchange", exch.Name, "rows", len(exchRows))
	}
	return rows
}
