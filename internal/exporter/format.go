package exporter

import (
	"strconv"

	"foodpulse/internal/dataset"
)

// formatFloat renders a float with the shortest exact representation
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatCell renders a cell for CSV; missing values become empty fields
func formatCell(v dataset.Value) string {
	if v.IsNull() {
		return ""
	}
	return v.String()
}

// tableRecords converts a table to CSV records
func tableRecords(t *dataset.Table) [][]string {
	records := make([][]string, t.Len())
	for i := range records {
		row := t.Row(i)
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = formatCell(v)
		}
		records[i] = rec
	}
	return records
}
