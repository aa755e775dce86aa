// Package source fetches raw instrument master data from each broker's
// published endpoints. Every adapter applies its own fallback chain and
// emits raw rows; field-name reconciliation happens in the normalize
// package using the adapter's static Mapping.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"symbolsyncv1/internal/normalize"
)

// ErrInsufficientData marks a payload below an adapter's minimum-viable
// size threshold. Treated like any other endpoint failure by fallback
// chains.
var ErrInsufficientData = errors.New("payload below minimum viable size")

// FetchError means every known endpoint for a broker was exhausted
// without producing usable data. Fatal to that broker's sync.
type FetchError struct {
	Broker string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: all sources exhausted: %v", e.Broker, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchResult carries the raw rows from one broker fetch. Degraded is
// non-empty when the data came from a last-resort built-in fallback
// rather than a live endpoint; the orchestrator surfaces it on the
// status record so a nominal "success" on canned data is visible to
// operators.
type FetchResult struct {
	Rows     []normalize.Row
	Degraded string
}

// Adapter fetches one broker's instrument master.
type Adapter interface {
	// Broker returns the lowercase broker name.
	Broker() string

	// Mapping returns the static field table used to normalize this
	// broker's rows.
	Mapping() normalize.Mapping

	// Fetch retrieves raw rows, applying the broker's fallback chain.
	// Returns a *FetchError when every endpoint is exhausted.
	Fetch(ctx context.Context) (FetchResult, error)
}

// fetchBody GETs url with a per-request timeout and returns the body and
// response content type. Endpoints here serve multi-megabyte masters, so
// the timeout is chosen per source based on expected payload size.
func fetchBody(ctx context.Context, client *http.Client, url string, timeout time.Duration, headers map[string]string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func defaultClient() *http.Client {
	// Per-request timeouts come from context; the client itself stays
	// unbounded so a 120s Upstox fetch is not cut short.
	return &http.Client{}
}
