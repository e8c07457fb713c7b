package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

// ReadAnalyticsTable loads a persisted analytics CSV. Every empty field,
// quoted or not, is read back as a missing value: CSV cannot tell a present
// empty string from a missing cell, so a table holding empty strings does not
// round-trip unchanged.
func ReadAnalyticsTable(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewSourceNotFoundError(path, err)
		}
		return nil, apperrors.NewStorageError("open "+path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewParsingError(path+": empty file", nil)
		}
		return nil, apperrors.NewParsingError(path+": read header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows [][]dataset.Value
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s line %d", path, line), err)
		}
		row := make([]dataset.Value, len(record))
		for i, cell := range record {
			if cell == "" {
				row[i] = dataset.Null
			} else {
				row[i] = dataset.String(cell)
			}
		}
		rows = append(rows, row)
	}

	table, err := dataset.New(header, rows)
	if err != nil {
		return nil, apperrors.NewParsingError(path, err)
	}
	return table, nil
}
