package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"foodpulse/internal/dataset"
	apperrors "foodpulse/internal/errors"
)

// JSONSource loads the users file: a JSON array of objects. Nested objects
// are flattened into dotted column names (address.city); arrays are kept as
// their JSON text.
type JSONSource struct {
	Path   string
	Logger *slog.Logger
}

func (s JSONSource) Name() string { return "users" }

// LoadUsers parses the users JSON file at path
func LoadUsers(ctx context.Context, path string) (*dataset.Table, error) {
	return JSONSource{Path: path}.Load(ctx)
}

func (s JSONSource) Load(ctx context.Context) (*dataset.Table, error) {
	logger := loggerOr(s.Logger, s.Name())

	f, err := openSource(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := decodeRecords(ctx, bufio.NewReader(f))
	if err != nil {
		return nil, apperrors.NewParsingError(s.Path, err)
	}

	columns := []string{ColUserID}
	seen := map[string]bool{ColUserID: true}
	for i, rec := range records {
		if _, ok := rec.values[ColUserID]; !ok {
			return nil, apperrors.NewParsingError(fmt.Sprintf("%s record %d: %s missing", s.Path, i, ColUserID), nil)
		}
		for _, k := range rec.keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}

	rows := make([][]dataset.Value, len(records))
	for i, rec := range records {
		row := make([]dataset.Value, len(columns))
		for j, c := range columns {
			if v, ok := rec.values[c]; ok {
				row[j] = v
			} else {
				row[j] = dataset.Null
			}
		}
		rows[i] = row
	}

	table, err := dataset.New(columns, rows)
	if err != nil {
		return nil, apperrors.NewParsingError(s.Path, err)
	}

	logger.InfoContext(ctx, "users loaded",
		slog.String("path", s.Path),
		slog.Int("rows", table.Len()),
		slog.Int("columns", table.Width()))

	return table, nil
}

// flatRecord is one JSON object flattened to dotted keys, in document order
type flatRecord struct {
	keys   []string
	values map[string]dataset.Value
}

func (r *flatRecord) set(key string, v dataset.Value) error {
	if _, dup := r.values[key]; dup {
		return fmt.Errorf("duplicate key %q", key)
	}
	r.keys = append(r.keys, key)
	r.values[key] = v
	return nil
}

func decodeRecords(ctx context.Context, r io.Reader) ([]flatRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening token: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.New("top-level value must be an array of objects")
	}

	var records []flatRecord
	for dec.More() {
		if len(records)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, fmt.Errorf("record %d is not an object", len(records))
		}

		rec := flatRecord{values: make(map[string]dataset.Value)}
		if err := decodeObject(dec, "", &rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		if v, ok := rec.values[ColUserID]; ok && v.IsNull() {
			return nil, fmt.Errorf("record %d: %s is null", len(records), ColUserID)
		}
		records = append(records, rec)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read closing token: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the array")
	}

	return records, nil
}

// decodeObject consumes the members of an object whose '{' was already read
func decodeObject(dec *json.Decoder, prefix string, rec *flatRecord) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("object key expected, got %v", tok)
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		if err := decodeMember(dec, key, rec); err != nil {
			return err
		}
	}

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '}' {
		return fmt.Errorf("object end expected, got %v", tok)
	}
	return nil
}

func decodeMember(dec *json.Decoder, key string, rec *flatRecord) error {
	// Arrays are captured whole as raw JSON rather than flattened
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "null":
		return rec.set(key, dataset.Null)
	case strings.HasPrefix(trimmed, "{"):
		inner := json.NewDecoder(strings.NewReader(trimmed))
		inner.UseNumber()
		if _, err := inner.Token(); err != nil {
			return err
		}
		return decodeObject(inner, key, rec)
	case strings.HasPrefix(trimmed, "["):
		return rec.set(key, dataset.String(trimmed))
	case strings.HasPrefix(trimmed, `"`):
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return rec.set(key, dataset.String(s))
	default:
		// numbers and booleans keep their literal text
		return rec.set(key, dataset.String(trimmed))
	}
}
