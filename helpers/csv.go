package helpers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ============================================================================
// CSV HELPER: reads user table exports
// ============================================================================
// Consumers read the CSV from wherever it lives (file, upload, bucket).
// This helper turns the raw bytes into trimmed header and row slices that
// table discovery can classify.
// ============================================================================

// ErrNoHeader is returned for CSV input without a header row.
var ErrNoHeader = errors.New("csv has no header row")

// ReadCSV parses data into headers and rows. Malformed rows are skipped and
// short rows are padded so every row has len(headers) cells.
func ReadCSV(data []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrNoHeader
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}
		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		rows = append(rows, cells)
	}
	return headers, rows, nil
}

// SnakeCase converts "Column Name" or "columnName" to "column_name".
func SnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])) {
			b.WriteRune('_')
		}
		b.WriteRune(r)
	}
	s = strings.ToLower(b.String())
	s = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// DisplayName cleans a header for display: "story_points" becomes
// "Story Points". Headers that already contain spaces are only trimmed.
func DisplayName(s string) string {
	if strings.Contains(s, " ") {
		return strings.TrimSpace(s)
	}
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(s))
	for i, w := range words {
		r, n := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[n:])
	}
	return strings.Join(words, " ")
}
