package metrics

import "sort"

// ErrorRow is one line of the ranked error-kind breakdown.
type ErrorRow struct {
	Label   string  `json:"label" yaml:"label"`
	Count   int64   `json:"count" yaml:"count"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// RankErrors converts an error-kind histogram into rows sorted by descending
// count, then by label for stability. Percent is the share of failed.
func RankErrors(errs map[string]int64, failed int64) []ErrorRow {
	if len(errs) == 0 {
		return nil
	}
	rows := make([]ErrorRow, 0, len(errs))
	for label, count := range errs {
		pct := 0.0
		if failed > 0 {
			pct = float64(count) / float64(failed) * 100
		}
		rows = append(rows, ErrorRow{Label: label, Count: count, Percent: pct})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
