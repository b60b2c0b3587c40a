// Package shape post-processes raw result sets for token-budgeted callers:
// per-cell truncation, whole-response truncation with a first/last row
// preview, compact TOON serialization, and per-column statistics.
package shape

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Config holds the truncation budget. Zero values are invalid; callers apply
// defaults before constructing one.
type Config struct {
	// MaxResponseChars is the total character budget for one response.
	MaxResponseChars int
	// MaxCellChars is the per-cell cap before the middle is elided.
	MaxCellChars int
	// CellPreviewChars is kept from each end of an elided cell.
	CellPreviewChars int
	// MinRowsForPreview is the minimum head/tail window size.
	MinRowsForPreview int
}

// DefaultConfig returns the stock budget: 8000 chars per response, 200 per
// cell with an 80-char preview from each end, 3-row minimum windows.
func DefaultConfig() Config {
	return Config{
		MaxResponseChars:  8000,
		MaxCellChars:      200,
		CellPreviewChars:  80,
		MinRowsForPreview: 3,
	}
}

// Meta describes what truncation did to a result set.
type Meta struct {
	TotalRows        int    `json:"total_rows"`
	TotalCharsApprox int    `json:"total_chars_approx"`
	CellsTruncated   bool   `json:"cells_truncated"`
	Truncated        bool   `json:"truncated"`
	RowsShown        int    `json:"rows_shown"`
	RowsOmitted      int    `json:"rows_omitted,omitempty"`
	Preview          string `json:"preview,omitempty"`
}

// Stringify renders a scalar in its canonical string form. Composite values
// fall back to JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}
}

// TruncateCell caps a single cell value at maxChars characters, replacing the
// middle with an ellipsis marker carrying the omitted character count and
// keeping previewChars characters from each end. Null passes through
// unchanged and is never truncated. Non-string values are stringified first
// but returned unchanged when they fit.
//
// TruncateCell is idempotent: the truncated form of a 200-char cap with an
// 80-char preview is itself shorter than the cap.
func TruncateCell(v any, maxChars, previewChars int) (any, bool) {
	if v == nil {
		return nil, false
	}
	s, isString := v.(string)
	if !isString {
		s = Stringify(v)
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return v, false
	}
	head := string(runes[:previewChars])
	tail := string(runes[len(runes)-previewChars:])
	return fmt.Sprintf("%s…[%d chars]…%s", head, len(runes)-2*previewChars, tail), true
}

// estimateRowChars approximates the serialized size of a row: one character
// for null, the character count of the canonical string form otherwise.
func estimateRowChars(row map[string]any) int {
	total := 0
	for _, v := range row {
		switch val := v.(type) {
		case nil:
			total++
		case string:
			total += utf8.RuneCountInString(val)
		default:
			total += utf8.RuneCountInString(Stringify(val))
		}
	}
	return total
}

// SmartTruncate bounds a result set to the configured character budget.
//
// With forceFull set, rows pass through untouched (no cell truncation
// either). Otherwise cells are truncated first, and if the summed estimate
// still exceeds the budget and the set is large enough to split, only a head
// window and a tail window are returned. The head/tail policy keeps both the
// earliest and most recent ends of typically time-ordered result sets while
// guaranteeing a hard bound independent of table size.
func (c Config) SmartTruncate(rows []map[string]any, forceFull bool) ([]map[string]any, Meta) {
	if len(rows) == 0 {
		return []map[string]any{}, Meta{}
	}
	totalRows := len(rows)

	if forceFull {
		chars := 0
		for _, row := range rows {
			chars += estimateRowChars(row)
		}
		return rows, Meta{TotalRows: totalRows, TotalCharsApprox: chars, RowsShown: totalRows}
	}

	cellsTruncated := false
	processed := make([]map[string]any, 0, totalRows)
	chars := 0
	for _, row := range rows {
		shaped := make(map[string]any, len(row))
		for k, v := range row {
			cell, truncated := TruncateCell(v, c.MaxCellChars, c.CellPreviewChars)
			shaped[k] = cell
			if truncated {
				cellsTruncated = true
			}
		}
		processed = append(processed, shaped)
		chars += estimateRowChars(shaped)
	}

	meta := Meta{
		TotalRows:        totalRows,
		TotalCharsApprox: chars,
		CellsTruncated:   cellsTruncated,
	}

	if chars <= c.MaxResponseChars || totalRows <= c.MinRowsForPreview*2 {
		meta.RowsShown = totalRows
		return processed, meta
	}

	avgRowChars := float64(chars) / float64(totalRows)
	maxRows := int(float64(c.MaxResponseChars) / avgRowChars)
	if maxRows < c.MinRowsForPreview*2 {
		maxRows = c.MinRowsForPreview * 2
	}
	showEach := maxRows / 2
	if showEach < c.MinRowsForPreview {
		showEach = c.MinRowsForPreview
	}

	// If the two windows would cover the whole set anyway, splitting gains
	// nothing: return everything.
	if showEach*2 >= totalRows {
		meta.RowsShown = totalRows
		return processed, meta
	}

	out := make([]map[string]any, 0, showEach*2)
	out = append(out, processed[:showEach]...)
	out = append(out, processed[totalRows-showEach:]...)

	meta.Truncated = true
	meta.RowsShown = showEach * 2
	meta.RowsOmitted = totalRows - showEach*2
	meta.Preview = fmt.Sprintf("first %d + last %d of %d", showEach, showEach, totalRows)
	return out, meta
}

// ToTOON renders rows in the compact TOON format: a header line
// "rows[count]{field,field}:" followed by one indented comma-joined line per
// row. Null renders as ∅, booleans as T/F; newlines and tabs become visible
// single-character markers; values containing a comma or double quote are
// wrapped CSV-style. The format is write-only: no parser exists or is needed.
func ToTOON(rows []map[string]any, columns []string) string {
	if len(rows) == 0 {
		return "rows[0]{}: (empty)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "rows[%d]{%s}:", len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = toonCell(row[col])
		}
		b.WriteString("\n  ")
		b.WriteString(strings.Join(cells, ","))
	}
	return b.String()
}

var toonEscaper = strings.NewReplacer("\n", "↵", "\t", "→", "\r", "")

func toonCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "∅"
	case bool:
		if val {
			return "T"
		}
		return "F"
	case string:
		s := toonEscaper.Replace(val)
		if strings.ContainsAny(s, ",\"") {
			s = `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
		}
		return s
	default:
		return Stringify(v)
	}
}
