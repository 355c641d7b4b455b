package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spektr-org/widgetkit/helpers"
)

// ============================================================================
// DISCOVERY: column input types from raw CSV
// ============================================================================
// Inspects sampled cells of each column and picks an input type:
//   1. bool / date / number when 80%+ of non-empty cells parse as one
//   2. single_select for low-cardinality text
//   3. text otherwise
// ============================================================================

// DiscoverOptions controls discovery.
type DiscoverOptions struct {
	SampleSize int // Max rows to inspect (0 = all). Default: 1000
	// MaxSelectValues is the distinct-value ceiling for single_select.
	MaxSelectValues int
}

// DefaultDiscoverOptions returns sensible defaults.
func DefaultDiscoverOptions() DiscoverOptions {
	return DiscoverOptions{SampleSize: 1000, MaxSelectValues: 20}
}

// DiscoverCSV builds a Schema with id from CSV bytes. Column ids are the
// snake-cased headers.
func DiscoverCSV(id string, data []byte, opts ...DiscoverOptions) (Schema, error) {
	opt := DefaultDiscoverOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	headers, rows, err := helpers.ReadCSV(data)
	if err != nil {
		return Schema{}, fmt.Errorf("discover table %s: %w", id, err)
	}

	sample := rows
	if opt.SampleSize > 0 && len(sample) > opt.SampleSize {
		sample = sample[:opt.SampleSize]
	}

	s := Schema{ID: id, Columns: make([]Column, 0, len(headers))}
	ids := make([]string, len(headers))
	seen := map[string]int{}
	for i, h := range headers {
		colID := helpers.SnakeCase(h)
		if colID == "" {
			colID = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[colID]; n > 0 {
			seen[colID] = n + 1
			colID = fmt.Sprintf("%s_%d", colID, n+1)
		} else {
			seen[colID] = 1
		}
		ids[i] = colID

		values := make([]string, 0, len(sample))
		for _, row := range sample {
			if v := row[i]; v != "" {
				values = append(values, v)
			}
		}
		s.Columns = append(s.Columns, Column{
			ID:        colID,
			Title:     helpers.DisplayName(h),
			InputType: detectInputType(values, opt.MaxSelectValues),
		})
	}

	s.Rows = make([]Row, len(rows))
	for r, row := range rows {
		out := make(Row, len(ids))
		for i, colID := range ids {
			out[colID] = row[i]
		}
		s.Rows[r] = out
	}
	return s, nil
}

// detectInputType requires 80%+ of non-empty values to match for
// boolean/date/number.
func detectInputType(values []string, maxSelect int) string {
	if len(values) == 0 {
		return InputText
	}

	numCount, dateCount, boolCount := 0, 0, 0
	distinct := map[string]bool{}
	for _, v := range values {
		if isNumeric(v) {
			numCount++
		}
		if isDate(v) {
			dateCount++
		}
		if isBool(v) {
			boolCount++
		}
		distinct[strings.ToLower(v)] = true
	}

	threshold := int(float64(len(values)) * 0.8)
	if threshold == 0 {
		threshold = 1
	}

	switch {
	case boolCount >= threshold && len(distinct) <= 2:
		return InputBoolean
	case dateCount >= threshold:
		return InputDate
	case numCount >= threshold:
		return InputNumber
	case maxSelect > 0 && len(distinct) <= maxSelect && len(distinct) < len(values):
		return InputSingleSelect
	}
	return InputText
}

func isNumeric(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "") // handle "1,234.56"
	s = strings.TrimLeft(s, "$€£")
	s = strings.TrimPrefix(s, "-")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"Jan-2006",
	"January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func isDate(s string) bool {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func isBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}
