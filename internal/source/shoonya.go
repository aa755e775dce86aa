package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/normalize"
)

// ShoonyaEndpoint names one per-exchange symbol file.
type ShoonyaEndpoint struct {
	Name    string // exchange name for rows from this file
	Segment string
	URL     string
}

var shoonyaEndpoints = []ShoonyaEndpoint{
	{Name: "NSE", Segment: "EQ", URL: "https://api.shoonya.com/NSE_symbols.txt"},
	{Name: "BSE", Segment: "EQ", URL: "https://api.shoonya.com/BSE_symbols.txt"},
	{Name: "NFO", Segment: "FO", URL: "https://api.shoonya.com/NFO_symbols.txt"},
	{Name: "MCX", Segment: "FO", URL: "https://api.shoonya.com/MCX_symbols.txt"},
}

// shoonyaMapping: rows are built positionally by the adapter under these
// canonical keys, so each field has exactly one synonym.
var shoonyaMapping = normalize.Mapping{
	Symbol:         []string{"symbol"},
	Name:           []string{"name"},
	Exchange:       []string{"exchange"},
	Segment:        []string{"segment"},
	InstrumentType: []string{"instrument_type"},
	LotSize:        []string{"lot_size"},
	TickSize:       []string{"tick_size"},
	Expiry:         []string{"expiry"},
	Strike:         []string{"strike"},
	OptionType:     []string{"option_type"},
	BrokerToken:    []string{"token"},
	BrokerExchange: []string{"exchange"},
	SymbolToken:    []string{"token"},
	Precision:      []string{"precision"},
}

// shoonyaFallbackSymbols is the last-resort built-in set served when
// every endpoint yields nothing. Deliberately tiny: it keeps dependent
// order flows alive for the most liquid NSE names while operators fix
// connectivity. Any sync served from this set is flagged as degraded on
// the status record.
var shoonyaFallbackSymbols = []struct{ Symbol, Name string }{
	{"RELIANCE", "Reliance Industries Ltd"},
	{"TCS", "Tata Consultancy Services Ltd"},
	{"INFY", "Infosys Ltd"},
	{"HDFCBANK", "HDFC Bank Ltd"},
	{"ICICIBANK", "ICICI Bank Ltd"},
}

// Shoonya fetches the Finvasia per-exchange symbol files. The files have
// shipped with pipe, comma and tab delimiters at different times, so
// each line is probed in that order. Lines starting with '#' are
// comments.
type Shoonya struct {
	Endpoints []ShoonyaEndpoint
	Timeout   time.Duration
	MinSize   int // per-endpoint minimum body size to bother parsing

	client *http.Client
}

// NewShoonya creates the Shoonya adapter with production defaults.
func NewShoonya(client *http.Client) *Shoonya {
	if client == nil {
		client = defaultClient()
	}
	return &Shoonya{
		Endpoints: shoonyaEndpoints,
		Timeout:   60 * time.Second,
		MinSize:   100,
		client:    client,
	}
}

func (s *Shoonya) Broker() string             { return model.BrokerShoonya }
func (s *Shoonya) Mapping() normalize.Mapping { return shoonyaMapping }

func (s *Shoonya) Fetch(ctx context.Context) (FetchResult, error) {
	var rows []normalize.Row

	for _, ep := range s.Endpoints {
		body, _, err := fetchBody(ctx, s.client, ep.URL, s.Timeout, nil)
		if err != nil {
			slog.Warn("shoonya endpoint failed", "url", ep.URL, "err", err)
			continue
		}
		if len(body) <= s.MinSize {
			slog.Warn("shoonya endpoint undersized", "url", ep.URL, "bytes", len(body))
			continue
		}

		epRows := s.parseLines(string(body), ep)
		rows = append(rows, epRows...)
		slog.Info("shoonya endpoint parsed", "exchange", ep.Name, "rows", len(epRows))
	}

	if len(rows) == 0 {
		degraded := fmt.Sprintf("degraded data: no symbols from any shoonya endpoint, served built-in fallback set (%d symbols)", len(shoonyaFallbackSymbols))
		slog.Warn("shoonya fully unreachable, serving built-in fallback set")
		return FetchResult{Rows: s.fallbackRows(), Degraded: degraded}, nil
	}

	return FetchResult{Rows: rows}, nil
}

// parseLines scans one symbol file. Each line is split on '|' first,
// then ',' (quote-aware), then tab, taking the first delimiter that
// yields at least 3 fields.
func (s *Shoonya) parseLines(body string, ep ShoonyaEndpoint) []normalize.Row {
	var rows []normalize.Row

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		values := splitDelimited(line)
		if len(values) < 3 {
			continue
		}

		row := normalize.Row{
			"symbol":          field(values, 0),
			"name":            field(values, 1),
			"instrument_type": field(values, 2),
			"lot_size":        field(values, 3),
			"tick_size":       field(values, 4),
			"expiry":          field(values, 5),
			"strike":          field(values, 6),
			"option_type":     field(values, 7),
			"token":           field(values, 8),
			"precision":       field(values, 9),
			"exchange":        ep.Name,
			"segment":         ep.Segment,
		}
		if row["name"] == "" {
			row["name"] = row["symbol"]
		}
		if row["instrument_type"] == "" {
			row["instrument_type"] = "EQ"
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Shoonya) fallbackRows() []normalize.Row {
	rows := make([]normalize.Row, 0, len(shoonyaFallbackSymbols))
	for _, fb := range shoonyaFallbackSymbols {
		rows = append(rows, normalize.Row{
			"symbol":          fb.Symbol,
			"name":            fb.Name,
			"exchange":        "NSE",
			"segment":         "EQ",
			"instrument_type": "EQ",
			"lot_size":        "1",
			"tick_size":       "0.05",
			"token":           fb.Symbol,
			"precision":       strconv.Itoa(normalize.DefaultPrecision),
		})
	}
	return rows
}

// splitDelimited probes '|', ',' and tab in order, keeping the first
// split that produces 3+ fields. The comma probe is quote-aware.
func splitDelimited(line string) []string {
	values := strings.Split(line, "|")
	if len(values) < 3 {
		values = SplitCSVLine(line)
	}
	if len(values) < 3 {
		values = strings.Split(line, "\t")
	}
	return values
}

func field(values []string, i int) string {
	if i < len(values) {
		return strings.TrimSpace(values[i])
	}
	return ""
}
