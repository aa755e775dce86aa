// Package archive writes dated JSON and CSV snapshots of each broker's
// normalized symbol dump to a flat directory. Snapshots are an audit
// trail and a manual-recovery source; archiving is best-effort and a
// sync never fails because of it.
package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"symbolsyncv1/internal/model"
)

// snapshot is the JSON envelope written to disk.
type snapshot struct {
	Broker       string               `json:"broker"`
	Timestamp    time.Time            `json:"timestamp"`
	TotalSymbols int                  `json:"total_symbols"`
	Symbols      []model.SymbolRecord `json:"symbols"`
}

// csvHeader fixes the snapshot CSV column order.
var csvHeader = []string{
	"symbol", "name", "exchange", "segment", "instrument_type",
	"lot_size", "tick_size", "expiry", "strike", "option_type",
	"broker_token", "broker_exchange",
}

// Archiver stores snapshots under a single directory. Filenames follow
// {broker}_symbols_{YYYY-MM-DD}.{json,csv}; a _latest variant of each is
// overwritten every run so consumers have a stable path.
type Archiver struct {
	dir string
}

func New(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	return &Archiver{dir: dir}, nil
}

// Save writes the dated and latest JSON+CSV snapshots for one broker.
// The dated pair for a given day is overwritten by later runs the same day.
func (a *Archiver) Save(broker string, records []model.SymbolRecord) error {
	date := time.Now().Format("2006-01-02")

	env := snapshot{
		Broker:       broker,
		Timestamp:    time.Now().UTC(),
		TotalSymbols: len(records),
		Symbols:      records,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", broker, err)
	}

	for _, name := range []string{
		fmt.Sprintf("%s_symbols_%s.json", broker, date),
		fmt.Sprintf("%s_symbols_latest.json", broker),
	} {
		if err := os.WriteFile(filepath.Join(a.dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	for _, name := range []string{
		fmt.Sprintf("%s_symbols_%s.csv", broker, date),
		fmt.Sprintf("%s_symbols_latest.csv", broker),
	} {
		if err := a.writeCSV(filepath.Join(a.dir, name), records); err != nil {
			return err
		}
	}

	slog.Info("symbol snapshot archived", "broker", broker, "symbols", len(records), "dir", a.dir)
	return nil
}

func (a *Archiver) writeCSV(path string, records []model.SymbolRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Symbol, r.Name, r.Exchange, r.Segment, r.InstrumentType,
			strconv.Itoa(r.LotSize),
			strconv.FormatFloat(r.TickSize, 'f', -1, 64),
			r.Expiry,
			strconv.FormatFloat(r.Strike, 'f', -1, 64),
			r.OptionType, r.BrokerToken, r.BrokerExchange,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return nil
}

// List returns metadata for every snapshot file in the archive
// directory, newest first. Files that do not match the snapshot naming
// scheme are ignored.
func (a *Archiver) List() ([]model.SnapshotFile, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}

	var out []model.SnapshotFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		sf, ok := parseSnapshotName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sf.Size = info.Size()
		sf.Modified = info.ModTime()
		out = append(out, sf)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Modified.Equal(out[j].Modified) {
			return out[i].Modified.After(out[j].Modified)
		}
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

// parseSnapshotName decodes {broker}_symbols_{date|latest}.{json,csv}.
func parseSnapshotName(name string) (model.SnapshotFile, bool) {
	var typ string
	switch {
	case strings.HasSuffix(name, ".json"):
		typ = "json"
	case strings.HasSuffix(name, ".csv"):
		typ = "csv"
	default:
		return model.SnapshotFile{}, false
	}

	base := strings.TrimSuffix(name, "."+typ)
	broker, rest, ok := strings.Cut(base, "_symbols_")
	if !ok || broker == "" || rest == "" {
		return model.SnapshotFile{}, false
	}
	return model.SnapshotFile{
		Filename: name,
		Broker:   broker,
		Date:     rest,
		Type:     typ,
	}, true
}

// LoadLatest reads the newest JSON snapshot for a broker. Used as a
// recovery source when every live endpoint is down.
func (a *Archiver) LoadLatest(broker string) ([]model.SymbolRecord, error) {
	path := filepath.Join(a.dir, fmt.Sprintf("%s_symbols_latest.json", broker))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read latest snapshot for %s: %w", broker, err)
	}

	var env snapshot
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	return env.Symbols, nil
}
