package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"symbolsyncv1/internal/normalize"
)

// parseCSV reads a full CSV body into a header row and data rows.
// encoding/csv handles quoted fields containing commas, doubled-quote
// escapes and embedded newlines; FieldsPerRecord is disabled because
// broker masters are frequently ragged.
func parseCSV(body []byte) ([]string, [][]string, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(all) < 2 {
		return nil, nil, fmt.Errorf("parse csv: %w", ErrInsufficientData)
	}

	headers := make([]string, len(all[0]))
	for i, h := range all[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return headers, all[1:], nil
}

// csvRows converts raw CSV data rows into normalize.Rows keyed by header
// name. Rows with fewer than minFields values are skipped.
func csvRows(headers []string, data [][]string, minFields int) []normalize.Row {
	rows := make([]normalize.Row, 0, len(data))
	for _, values := range data {
		if len(values) < minFields {
			continue
		}
		row := make(normalize.Row, len(headers))
		for i, h := range headers {
			if i < len(values) {
				row[h] = strings.TrimSpace(values[i])
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// SplitCSVLine splits a single CSV line on unquoted commas using a
// quote-aware scan: `"` toggles the in-quotes state and `""` inside
// quotes is a literal quote. Used where sources are parsed line by line
// and a naive strings.Split would break quoted fields.
func SplitCSVLine(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields
}

// stripHeaderLine returns the first line of body and the remainder.
// Headers never contain embedded newlines, so a plain scan is safe here.
func stripHeaderLine(body []byte) (header, rest []byte) {
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		return bytes.TrimRight(body[:i], "\r"), body[i+1:]
	}
	return body, nil
}
