package exporter

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/xuri/excelize/v2"

	"foodpulse/internal/config"
	"foodpulse/internal/dataset"
	"foodpulse/internal/infrastructure"
)

// Sheet is one worksheet of a report workbook
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// TableSheet converts a table into a sheet. Missing cells stay empty; cells
// whose text is a canonical number are written as numbers.
func TableSheet(name string, table *dataset.Table) Sheet {
	rows := make([][]any, table.Len())
	for i := range rows {
		cells := table.Row(i)
		row := make([]any, len(cells))
		for j, v := range cells {
			row[j] = sheetCell(v)
		}
		rows[i] = row
	}
	return Sheet{Name: name, Headers: table.Columns(), Rows: rows}
}

func sheetCell(v dataset.Value) any {
	if v.IsNull() {
		return nil
	}
	if f, ok, err := v.AsFloat(); err == nil && ok && formatFloat(f) == v.String() {
		return f
	}
	return v.String()
}

// WorkbookWriter renders sheets into an xlsx file
type WorkbookWriter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer
func NewWorkbookWriter(paths *config.Paths, logger *slog.Logger) *WorkbookWriter {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &WorkbookWriter{paths: paths, logger: logger.With(slog.String("component", "workbook_writer"))}
}

// Write creates filePath with one worksheet per sheet, in order
func (w *WorkbookWriter) Write(filePath string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("workbook needs at least one sheet")
	}

	fullPath := filePath
	if w.paths != nil {
		fullPath = (&CSVWriter{paths: w.paths}).resolvePath(filePath)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCE6F1"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	defaultSheet := f.GetSheetName(0)
	for i, sheet := range sheets {
		if i == 0 && sheet.Name != defaultSheet {
			if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
				return fmt.Errorf("rename sheet %s: %w", sheet.Name, err)
			}
		} else if i > 0 {
			if _, err := f.NewSheet(sheet.Name); err != nil {
				return fmt.Errorf("add sheet %s: %w", sheet.Name, err)
			}
		}

		if err := writeSheet(f, sheet, headerStyle); err != nil {
			return fmt.Errorf("sheet %s: %w", sheet.Name, err)
		}
	}
	f.SetActiveSheet(0)

	w.logger.Info("Writing workbook",
		slog.String("full_path", fullPath),
		slog.Int("sheets", len(sheets)))

	return writeAtomic(fullPath, func(file *os.File) error {
		return f.Write(file)
	})
}

func writeSheet(f *excelize.File, sheet Sheet, headerStyle int) error {
	if len(sheet.Headers) > 0 {
		headers := make([]any, len(sheet.Headers))
		for i, h := range sheet.Headers {
			headers[i] = h
		}
		if err := f.SetSheetRow(sheet.Name, "A1", &headers); err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(headers), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet.Name, "A1", last, headerStyle); err != nil {
			return err
		}
		if err := f.SetPanes(sheet.Name, &excelize.Panes{
			Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
		}); err != nil {
			return err
		}
	}

	for i, row := range sheet.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet.Name, cell, &r); err != nil {
			return err
		}
	}
	return nil
}
