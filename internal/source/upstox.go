package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/normalize"
)

const upstoxCompleteURL = "https://assets.upstox.com/market-quote/instruments/exchange/complete.csv"

var upstoxExchangeURLs = []string{
	"https://assets.upstox.com/market-quote/instruments/exchange/NSE_EQ.csv",
	"https://assets.upstox.com/market-quote/instruments/exchange/NSE_FO.csv",
	"https://assets.upstox.com/market-quote/instruments/exchange/BSE_EQ.csv",
	"https://assets.upstox.com/market-quote/instruments/exchange/BSE_FO.csv",
	"https://assets.upstox.com/market-quote/instruments/exchange/MCX_FO.csv",
}

// upstoxMapping: Upstox has shipped several header generations, so most
// fields carry synonyms in priority order.
var upstoxMapping = normalize.Mapping{
	Symbol:         []string{"trading_symbol", "symbol", "tradingsymbol"},
	Name:           []string{"name", "company_name", "companyname"},
	Exchange:       []string{"exchange"},
	Segment:        []string{"segment"},
	InstrumentType: []string{"instrument_type", "instrumenttype"},
	LotSize:        []string{"lot_size", "lotsize"},
	TickSize:       []string{"tick_size", "ticksize"},
	Expiry:         []string{"expiry", "expiry_date"},
	Strike:         []string{"strike_price", "strike"},
	OptionType:     []string{"option_type", "optiontype"},
	BrokerToken:    []string{"instrument_key", "token", "instrument_token"},
	BrokerExchange: []string{"exchange"},
	ISIN:           []string{"isin"},
	WeeklyExpiry:   []string{"weekly_expiry"},
}

// Upstox fetches the combined instruments CSV, falling back to the fixed
// per-exchange CSV list when the combined endpoint fails or returns an
// undersized payload. The authenticated API serves the same data as
// JSON; the response content type decides which parser runs.
type Upstox struct {
	CompleteURL  string
	ExchangeURLs []string

	// AccessToken, when set, is sent as a bearer token so the endpoint
	// may answer with the authenticated JSON shape.
	AccessToken string

	CompleteTimeout time.Duration
	ExchangeTimeout time.Duration
	MinSize         int

	client *http.Client
}

// NewUpstox creates the Upstox adapter with production defaults.
func NewUpstox(client *http.Client, accessToken string) *Upstox {
	if client == nil {
		client = defaultClient()
	}
	return &Upstox{
		CompleteURL:     upstoxCompleteURL,
		ExchangeURLs:    upstoxExchangeURLs,
		AccessToken:     accessToken,
		CompleteTimeout: 120 * time.Second,
		ExchangeTimeout: 60 * time.Second,
		MinSize:         1000,
		client:          client,
	}
}

func (u *Upstox) Broker() string             { return model.BrokerUpstox }
func (u *Upstox) Mapping() normalize.Mapping { return upstoxMapping }

func (u *Upstox) Fetch(ctx context.Context) (FetchResult, error) {
	body, contentType, err := u.fetchComplete(ctx)
	if err == nil && strings.Contains(contentType, "application/json") {
		rows, jerr := upstoxJSONRows(body)
		if jerr == nil {
			slog.Info("fetched upstox instruments (json)", "rows", len(rows), "bytes", len(body))
			return FetchResult{Rows: rows}, nil
		}
		err = jerr
	}

	if err == nil && len(body) <= u.MinSize {
		err = fmt.Errorf("combined csv %d bytes: %w", len(body), ErrInsufficientData)
	}

	if err != nil {
		slog.Warn("upstox combined endpoint failed, trying per-exchange files", "err", err)
		body, err = u.fetchExchangeFallback(ctx)
		if err != nil {
			return FetchResult{}, &FetchError{Broker: u.Broker(), Err: err}
		}
	}

	headers, data, err := parseCSV(body)
	if err != nil {
		return FetchResult{}, &FetchError{Broker: u.Broker(), Err: err}
	}

	// Allow slightly ragged rows; trailing optional columns are common.
	minFields := len(headers) - 2
	if minFields < 1 {
		minFields = 1
	}
	rows := csvRows(headers, data, minFields)
	slog.Info("fetched upstox instruments (csv)", "rows", len(rows), "bytes", len(body))
	return FetchResult{Rows: rows}, nil
}

func (u *Upstox) fetchComplete(ctx context.Context) ([]byte, string, error) {
	var headers map[string]string
	if u.AccessToken != "" {
		headers = map[string]string{
			"Authorization": "Bearer " + u.AccessToken,
			"Accept":        "application/json",
		}
	}
	return fetchBody(ctx, u.client, u.CompleteURL, u.CompleteTimeout, headers)
}

// fetchExchangeFallback fetches each per-exchange CSV sequentially,
// keeping the first successful file's header and appending the data rows
// of the rest. An endpoint that fails individually is skipped; the
// combined result must still clear the size threshold.
func (u *Upstox) fetchExchangeFallback(ctx context.Context) ([]byte, error) {
	var combined []byte
	headerAdded := false

	for _, url := range u.ExchangeURLs {
		body, _, err := fetchBody(ctx, u.client, url, u.ExchangeTimeout, nil)
		if err != nil {
			slog.Warn("upstox exchange file failed", "url", url, "err", err)
			continue
		}

		header, rest := stripHeaderLine(body)
		if !headerAdded {
			combined = append(combined, header...)
			combined = append(combined, '\n')
			headerAdded = true
		}
		combined = append(combined, rest...)
		if len(rest) > 0 && rest[len(rest)-1] != '\n' {
			combined = append(combined, '\n')
		}
		slog.Info("upstox exchange file merged", "url", url, "bytes", len(body))
	}

	if len(combined) <= u.MinSize {
		return nil, fmt.Errorf("combined fallback %d bytes: %w", len(combined), ErrInsufficientData)
	}
	return combined, nil
}

// upstoxJSONRows parses the authenticated API shape: either a bare array
// of instruments or an envelope with a "data" array.
func upstoxJSONRows(body []byte) ([]normalize.Row, error) {
	var items []map[string]any

	if err := json.Unmarshal(body, &items); err != nil {
		var envelope struct {
			Data []map[string]any `json:"data"`
		}
		if err2 := json.Unmarshal(body, &envelope); err2 != nil || envelope.Data == nil {
			return nil, fmt.Errorf("parse upstox json: %w", err)
		}
		items = envelope.Data
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

// jsonString renders a decoded JSON value as the string the normalizer
// expects. Floats that are whole numbers print without the ".0" suffix
// so tokens and lot sizes survive the round trip.
func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
