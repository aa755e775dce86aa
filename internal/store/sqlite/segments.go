package sqlite

import "strings"

// segmentNames maps exchange → segment → display name for the segment
// catalog. Broker masters disagree on segment spelling, so this table
// covers every variant seen in production dumps.
var segmentNames = map[string]map[string]string{
	"NSE": {
		"NSE":     "NSE Equity",
		"EQ":      "NSE Equity",
		"EQUITY":  "NSE Equity",
		"CM":      "NSE Capital Market",
		"INDICES": "NSE Indices",
	},
	"BSE": {
		"BSE":     "BSE Equity",
		"EQ":      "BSE Equity",
		"EQUITY":  "BSE Equity",
		"CM":      "BSE Capital Market",
		"INDICES": "BSE Indices",
	},
	"NFO": {
		"NFO":     "NSE F&O (All)",
		"NFO-FUT": "NSE Futures",
		"NFO-OPT": "NSE Options",
		"FO":      "NSE F&O",
		"FUTURES": "NSE Futures",
		"OPTIONS": "NSE Options",
	},
	"BFO": {
		"BFO":     "BSE F&O (All)",
		"BFO-FUT": "BSE Futures",
		"BFO-OPT": "BSE Options",
		"FO":      "BSE F&O",
		"FUTURES": "BSE Futures",
		"OPTIONS": "BSE Options",
	},
	"MCX": {
		"MCX":       "MCX Commodity",
		"MCX-FUT":   "MCX Futures",
		"MCX-OPT":   "MCX Options",
		"FO":        "MCX Commodity",
		"FUTURES":   "MCX Futures",
		"COMMODITY": "MCX Commodity",
		"INDICES":   "MCX Indices",
	},
	"CDS": {
		"CDS":     "Currency Derivatives",
		"CDS-FUT": "Currency Futures",
		"CDS-OPT": "Currency Options",
		"CD":      "Currency Derivatives",
	},
	"NCO": {
		"NCO":     "NSE Commodity",
		"NCO-FUT": "NSE Commodity Futures",
		"NCO-OPT": "NSE Commodity Options",
	},
	"GLOBAL": {
		"INDICES": "Global Indices",
	},
	"NSEIX": {
		"INDICES": "NSE International Indices",
	},
}

// exchangeNames is the readable fallback when no exact segment entry exists.
var exchangeNames = map[string]string{
	"NSE":    "NSE Equity",
	"BSE":    "BSE Equity",
	"NFO":    "NSE F&O",
	"BFO":    "BSE F&O",
	"MCX":    "MCX Commodity",
	"CDS":    "Currency Derivatives",
	"NCO":    "NSE Commodity",
	"GLOBAL": "Global",
	"NSEIX":  "NSE International",
}

// SegmentDisplayName derives a human-readable name for a (segment,
// exchange) pair: exact table lookup first, then a convention-based
// fallback (FUT → Futures, OPT → Options, INDICES → Indices).
func SegmentDisplayName(segment, exchange string) string {
	if segs, ok := segmentNames[exchange]; ok {
		if name, ok := segs[segment]; ok {
			return name
		}
	}

	exchName := exchangeNames[exchange]
	if exchName == "" {
		exchName = exchange
	}

	switch {
	case strings.Contains(segment, "FUT"):
		return exchName + " Futures"
	case strings.Contains(segment, "OPT"):
		return exchName + " Options"
	case segment == "INDICES":
		return exchName + " Indices"
	case segment == exchange:
		return exchName
	default:
		return exchName + " " + segment
	}
}
