// Package exporter writes pipeline artifacts to disk.
//
// CSVWriter persists tables as CSV (missing cells become empty fields) and is
// how the analytics dataset reaches output/final_food_delivery_dataset.csv.
// WorkbookWriter renders the analysis results into a multi-sheet xlsx report.
//
// Relative paths are resolved against the configured output directory and
// parent directories are created on demand. Files are written to a temporary
// sibling and renamed into place, so readers never observe a half-written
// artifact.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(paths, logger)
//	if err := w.WriteTable(paths.AnalyticsFile, table); err != nil {
//	    return err
//	}
package exporter
