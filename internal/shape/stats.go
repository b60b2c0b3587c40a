package shape

import "sort"

// ColumnStats summarizes one column of a shaped result set.
type ColumnStats struct {
	NonNull      int      `json:"non_null"`
	Null         int      `json:"null"`
	Min          any      `json:"min,omitempty"`
	Max          any      `json:"max,omitempty"`
	Unique       int      `json:"unique,omitempty"`
	SampleValues []string `json:"sample_values,omitempty"`
}

// ComputeColumnStats computes per-column statistics over the given rows:
// non-null/null counts, numeric min/max, and for string columns a distinct
// count plus the sample set of distinct values when that count is at most 5.
// Samples are sorted so output is deterministic.
//
// Callers pass the shaped (post-truncation) rows, not the full result: the
// stats are a deliberate approximation under the size budget.
func ComputeColumnStats(rows []map[string]any, columns []string) map[string]ColumnStats {
	if len(rows) == 0 {
		return nil
	}
	stats := make(map[string]ColumnStats, len(columns))
	for _, col := range columns {
		var s ColumnStats
		var minVal, maxVal any
		var minF, maxF float64
		distinct := map[string]struct{}{}

		for _, row := range rows {
			v := row[col]
			if v == nil {
				s.Null++
				continue
			}
			s.NonNull++
			if f, ok := asFloat(v); ok {
				if minVal == nil || f < minF {
					minVal, minF = v, f
				}
				if maxVal == nil || f > maxF {
					maxVal, maxF = v, f
				}
				continue
			}
			if str, ok := v.(string); ok {
				distinct[str] = struct{}{}
			}
		}

		s.Min, s.Max = minVal, maxVal
		if len(distinct) > 0 {
			s.Unique = len(distinct)
			if s.Unique <= 5 {
				samples := make([]string, 0, s.Unique)
				for v := range distinct {
					samples = append(samples, v)
				}
				sort.Strings(samples)
				s.SampleValues = samples
			}
		}
		stats[col] = s
	}
	return stats
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}
