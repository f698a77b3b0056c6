package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// ExportCSV writes entries to CSV, one row per field
func ExportCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write([]string{"received_at", "stream", "kind", "timestamp", "field", "value"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// Write entries
	for _, e := range entries {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			row := []string{
				e.ReceivedAt.Format(time.RFC3339Nano),
				e.Stream,
				string(e.Kind),
				e.Timestamp.Format(time.RFC3339Nano),
				name,
				strconv.FormatFloat(e.Fields[name], 'f', -1, 64),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportJSON writes entries to JSON format
func ExportJSON(w io.Writer, entries []Entry) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	export := struct {
		ExportedAt time.Time `json:"exportedAt"`
		Count      int       `json:"count"`
		Entries    []Entry   `json:"entries"`
	}{
		ExportedAt: time.Now().UTC(),
		Count:      len(entries),
		Entries:    entries,
	}

	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}
