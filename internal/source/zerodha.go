package source

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"symbolsyncv1/internal/model"
	"symbolsyncv1/internal/normalize"
)

const zerodhaInstrumentsURL = "https://api.kite.trade/instruments"

// zerodhaMapping: the kite instruments dump uses stable snake_case
// column names, one synonym each.
var zerodhaMapping = normalize.Mapping{
	Symbol:         []string{"tradingsymbol"},
	Name:           []string{"name"},
	Exchange:       []string{"exchange"},
	Segment:        []string{"segment"},
	InstrumentType: []string{"instrument_type"},
	LotSize:        []string{"lot_size"},
	TickSize:       []string{"tick_size"},
	Expiry:         []string{"expiry"},
	Strike:         []string{"strike"},
	OptionType:     []string{"option_type"},
	BrokerToken:    []string{"instrument_token"},
	BrokerExchange: []string{"exchange"},
	ISIN:           []string{"isin"},
}

// Zerodha fetches the public kite instruments CSV. Single endpoint,
// parse-or-fail: there is no fallback source for this broker.
type Zerodha struct {
	URL     string
	Timeout time.Duration
	client  *http.Client
}

// NewZerodha creates the Zerodha adapter with production defaults.
func NewZerodha(client *http.Client) *Zerodha {
	if client == nil {
		client = defaultClient()
	}
	return &Zerodha{
		URL:     zerodhaInstrumentsURL,
		Timeout: 60 * time.Second,
		client:  client,
	}
}

func (z *Zerodha) Broker() string             { return model.BrokerZerodha }
func (z *Zerodha) Mapping() normalize.Mapping { return zerodhaMapping }

// Fetch downloads and parses the instruments CSV. Rows with fewer values
// than the header has columns are skipped.
func (z *Zerodha) Fetch(ctx context.Context) (FetchResult, error) {
	body, _, err := fetchBody(ctx, z.client, z.URL, z.Timeout, nil)
	if err != nil {
		return FetchResult{}, &FetchError{Broker: z.Broker(), Err: err}
	}

	headers, data, err := parseCSV(body)
	if err != nil {
		return FetchResult{}, &FetchError{Broker: z.Broker(), Err: err}
	}

	rows := csvRows(headers, data, len(headers))
	slog.Info("fetched zerodha instruments", "rows", len(rows), "bytes", len(body))
	return FetchResult{Rows: rows}, nil
}
