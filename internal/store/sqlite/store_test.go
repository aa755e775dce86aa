package sqlite

import (
	"context"
	"testing"
	"time"

	"symbolsyncv1/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func eqRecord(symbol, name string) model.SymbolRecord {
	return model.SymbolRecord{
		Symbol: symbol, Name: name, Exchange: "NSE", Segment: "EQ",
		InstrumentType: "EQ", LotSize: 1, TickSize: 0.05,
		BrokerToken: symbol + "-TOK", BrokerExchange: "NSE",
	}
}

func TestStoreSymbols_IdempotentUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []model.SymbolRecord{
		eqRecord("RELIANCE", "Reliance Industries"),
		eqRecord("TCS", "Tata Consultancy Services"),
		eqRecord("INFY", "Infosys"),
	}

	stored, updated, err := s.StoreSymbols(ctx, "zerodha", records)
	if err != nil {
		t.Fatalf("first store: %v", err)
	}
	if stored != 3 || updated != 0 {
		t.Errorf("first run: stored=%d updated=%d, want 3/0", stored, updated)
	}

	stored, updated, err = s.StoreSymbols(ctx, "zerodha", records)
	if err != nil {
		t.Fatalf("second store: %v", err)
	}
	if stored != 0 || updated != 3 {
		t.Errorf("second run: stored=%d updated=%d, want 0/3", stored, updated)
	}

	n, err := s.InstrumentCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("instrument count after re-sync: %d, want 3", n)
	}
}

func TestStoreSymbols_MultiBrokerCollapse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := eqRecord("RELIANCE", "Reliance Industries")
	if _, _, err := s.StoreSymbols(ctx, "zerodha", []model.SymbolRecord{rec}); err != nil {
		t.Fatal(err)
	}

	rec.BrokerToken = "NSE_EQ|INE002A01018" // upstox identifies differently
	if _, _, err := s.StoreSymbols(ctx, "upstox", []model.SymbolRecord{rec}); err != nil {
		t.Fatal(err)
	}

	n, _ := s.InstrumentCount(ctx)
	if n != 1 {
		t.Fatalf("two brokers, same identity: count=%d, want 1", n)
	}

	d, err := s.GetDetails(ctx, "RELIANCE", "NSE")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || len(d.Mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %+v", d)
	}

	// The first broker's mapping must survive the second broker's upsert
	zm, err := s.GetMapping(ctx, "zerodha", "RELIANCE", "NSE")
	if err != nil {
		t.Fatal(err)
	}
	if zm == nil || zm.BrokerToken != "RELIANCE-TOK" {
		t.Errorf("zerodha mapping after upstox sync: %+v", zm)
	}
}

func TestStoreSymbols_MappingReplacedNotAppended(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := eqRecord("SBIN", "State Bank of India")
	s.StoreSymbols(ctx, "angel", []model.SymbolRecord{rec})

	rec.BrokerToken = "3045"
	s.StoreSymbols(ctx, "angel", []model.SymbolRecord{rec})

	d, err := s.GetDetails(ctx, "SBIN", "NSE")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Mappings) != 1 {
		t.Fatalf("re-sync must replace the mapping, got %d rows", len(d.Mappings))
	}
	if d.Mappings[0].BrokerToken != "3045" {
		t.Errorf("mapping token not updated: %q", d.Mappings[0].BrokerToken)
	}
}

func TestStoreSymbols_DistinctIdentitiesStaySeparate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fut := model.SymbolRecord{
		Symbol: "NIFTY25DECFUT", Name: "NIFTY", Exchange: "NFO", Segment: "NFO-FUT",
		InstrumentType: "FUT", LotSize: 75, TickSize: 0.05,
		Expiry: "2025-12-24", BrokerToken: "35001",
	}
	ce := fut
	ce.Symbol = "NIFTY25DEC26000CE"
	ce.Segment = "NFO-OPT"
	ce.InstrumentType = "OPT"
	ce.Strike = 26000
	ce.OptionType = "CE"

	stored, _, err := s.StoreSymbols(ctx, "zerodha", []model.SymbolRecord{fut, ce})
	if err != nil {
		t.Fatal(err)
	}
	if stored != 2 {
		t.Errorf("stored=%d, want 2", stored)
	}
}

func TestSearch_Ranking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []model.SymbolRecord{
		eqRecord("SOMETHING RELIANCE", "Something Else Ltd"),
		eqRecord("RELIANCE INDUSTRIES", "Reliance Industries Ltd"),
		eqRecord("RELIANCE", "Reliance Industries Ltd"),
	}
	if _, _, err := s.StoreSymbols(ctx, "zerodha", records); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, "RELIANCE", model.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Symbol != "RELIANCE" {
		t.Errorf("exact match should rank first, got %q", results[0].Symbol)
	}
	if results[1].Symbol != "RELIANCE INDUSTRIES" {
		t.Errorf("prefix match should rank second, got %q", results[1].Symbol)
	}
	if results[2].Symbol != "SOMETHING RELIANCE" {
		t.Errorf("substring match should rank last, got %q", results[2].Symbol)
	}
}

func TestSearch_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nse := eqRecord("TCS", "Tata Consultancy Services")
	bse := eqRecord("TCS", "Tata Consultancy Services")
	bse.Exchange = "BSE"
	bse.BrokerExchange = "BSE"

	s.StoreSymbols(ctx, "zerodha", []model.SymbolRecord{nse, bse})
	s.StoreSymbols(ctx, "upstox", []model.SymbolRecord{nse})

	results, err := s.Search(ctx, "TCS", model.SearchFilters{Exchange: "BSE"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Exchange != "BSE" {
		t.Errorf("exchange filter: %+v", results)
	}

	results, err = s.Search(ctx, "TCS", model.SearchFilters{Broker: "upstox"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Exchange != "NSE" {
		t.Errorf("broker filter: %+v", results)
	}
}

func TestSearch_ExcludesExpiredByDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	live := eqRecord("BANKNIFTY-LIVE", "Bank Nifty")
	live.Expiry = time.Now().AddDate(0, 1, 0).Format("2006-01-02")
	dead := eqRecord("BANKNIFTY-DEAD", "Bank Nifty")
	dead.Expiry = "2020-01-30"
	odd := eqRecord("BANKNIFTY-ODD", "Bank Nifty")
	odd.Expiry = "30JAN2020" // unparsable by sqlite date(); treated as not expired

	s.StoreSymbols(ctx, "zerodha", []model.SymbolRecord{live, dead, odd})

	results, err := s.Search(ctx, "BANKNIFTY", model.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected expired row excluded, got %d results", len(results))
	}

	results, err = s.Search(ctx, "BANKNIFTY", model.SearchFilters{IncludeExpired: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("include_expired should return all 3, got %d", len(results))
	}
}

func TestGetMapping_Missing(t *testing.T) {
	s := newTestStore(t)
	m, err := s.GetMapping(context.Background(), "zerodha", "NOPE", "NSE")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("expected nil for unknown mapping, got %+v", m)
	}
}

func TestListSegments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	eq := eqRecord("RELIANCE", "Reliance Industries")
	fut := model.SymbolRecord{
		Symbol: "GOLD25DECFUT", Name: "Gold", Exchange: "MCX", Segment: "MCX-FUT",
		InstrumentType: "FUT", LotSize: 100, TickSize: 1, BrokerToken: "428",
	}
	s.StoreSymbols(ctx, "zerodha", []model.SymbolRecord{eq, fut})
	s.StoreSymbols(ctx, "angel", []model.SymbolRecord{eq})

	segs, err := s.ListSegments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}

	byKey := map[string]model.SegmentSummary{}
	for _, seg := range segs {
		byKey[seg.Exchange+"/"+seg.Segment] = seg
	}
	eqSeg := byKey["NSE/EQ"]
	if eqSeg.SymbolCount != 1 || eqSeg.BrokerCount != 2 {
		t.Errorf("NSE/EQ: %+v", eqSeg)
	}
	if eqSeg.DisplayName != "NSE Equity" {
		t.Errorf("display name: %q", eqSeg.DisplayName)
	}
	if byKey["MCX/MCX-FUT"].DisplayName != "MCX Futures" {
		t.Errorf("MCX display: %q", byKey["MCX/MCX-FUT"].DisplayName)
	}
}

func TestSegmentDisplayName_Fallbacks(t *testing.T) {
	cases := []struct {
		segment, exchange, want string
	}{
		{"EQ", "NSE", "NSE Equity"},
		{"NFO-OPT", "NFO", "NSE Options"},
		{"XX-FUT", "NFO", "NSE F&O Futures"},     // convention fallback
		{"WEIRD-OPT", "MCX", "MCX Commodity Options"},
		{"INDICES", "GIFT", "GIFT Indices"},       // unknown exchange
		{"GIFT", "GIFT", "GIFT"},                  // segment == exchange
		{"SOMETHING", "NSE", "NSE Equity SOMETHING"},
	}
	for _, tc := range cases {
		if got := SegmentDisplayName(tc.segment, tc.exchange); got != tc.want {
			t.Errorf("SegmentDisplayName(%q, %q) = %q, want %q", tc.segment, tc.exchange, got, tc.want)
		}
	}
}

func TestStatus_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	brokers := model.KnownBrokers()
	if err := s.InitStatuses(ctx, brokers); err != nil {
		t.Fatal(err)
	}
	// Idempotent: a second init never resets anything
	if err := s.InitStatuses(ctx, brokers); err != nil {
		t.Fatal(err)
	}

	statuses, err := s.GetStatuses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != len(brokers) {
		t.Fatalf("expected %d status rows, got %d", len(brokers), len(statuses))
	}
	for _, st := range statuses {
		if st.SyncStatus != model.SyncPending {
			t.Errorf("%s: initial status %q, want pending", st.BrokerName, st.SyncStatus)
		}
	}

	// pending → in_progress → failed with message
	s.SetStatus(ctx, "upstox", model.SyncInProgress, "", 0)
	s.SetStatus(ctx, "upstox", model.SyncFailed, "all sources exhausted", 0)

	statuses, _ = s.GetStatuses(ctx)
	var upstox *model.SyncStatus
	for i := range statuses {
		if statuses[i].BrokerName == "upstox" {
			upstox = &statuses[i]
		}
	}
	if upstox == nil || upstox.SyncStatus != model.SyncFailed {
		t.Fatalf("upstox status: %+v", upstox)
	}
	if upstox.ErrorMessage != "all sources exhausted" {
		t.Errorf("failed must carry the error message, got %q", upstox.ErrorMessage)
	}

	// failed → in_progress → completed clears the message
	s.SetStatus(ctx, "upstox", model.SyncInProgress, "", 0)
	s.SetStatus(ctx, "upstox", model.SyncCompleted, "", 40000)

	statuses, _ = s.GetStatuses(ctx)
	for _, st := range statuses {
		if st.BrokerName != "upstox" {
			continue
		}
		if st.SyncStatus != model.SyncCompleted || st.TotalSymbols != 40000 {
			t.Errorf("completed row: %+v", st)
		}
		if st.ErrorMessage != "" {
			t.Errorf("completed must clear error message, got %q", st.ErrorMessage)
		}
		if st.LastSyncAt.IsZero() {
			t.Error("completed must stamp last_sync_at")
		}
	}

	// Status rows are never deleted
	if len(statuses) != len(brokers) {
		t.Errorf("status row count changed: %d", len(statuses))
	}
}
