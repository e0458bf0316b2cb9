package movies

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Decode reads a JSON array of raw records.
// Titles must be present and unique across the collection.
func Decode(r io.Reader) ([]MovieRecord, error) {
	var raws []map[string]any
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}

	records := make([]MovieRecord, 0, len(raws))
	seen := make(map[string]int, len(raws))
	for i, raw := range raws {
		rec, err := FromRaw(raw)
		if err != nil {
			var recErr *RecordError
			if errors.As(err, &recErr) {
				recErr.Index = i
			}
			return nil, err
		}
		if first, ok := seen[rec.Title]; ok {
			return nil, &RecordError{
				Index: i,
				Field: FieldTitle,
				Value: rec.Title,
				Err:   fmt.Errorf("%w (first at record %d)", ErrDuplicateTitle, first),
			}
		}
		seen[rec.Title] = i
		records = append(records, rec)
	}

	return records, nil
}

// LoadFile reads records from a JSON file.
func LoadFile(path string) ([]MovieRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening records: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// WriteFile stores records in their persisted shape.
func WriteFile(path string, records []MovieRecord) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	return nil
}
