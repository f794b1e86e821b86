package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/luas-archive/collector/internal/realtime/luas"
)

// ReadNested loads a per-stop document
func ReadNested(path string) ([]luas.StopSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var stops []luas.StopSnapshot
	if err := json.Unmarshal(data, &stops); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return stops, nil
}

// ReadFlat loads a per-row document
func ReadFlat(path string) ([]FlatRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var records []FlatRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return records, nil
}

// UnmarshalJSON reverses MarshalJSON, restoring prefixed column names
func (r *FlatRecord) UnmarshalJSON(data []byte) error {
	var all luas.ForecastRow
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	rec := FlatRecord{Row: luas.ForecastRow{}}
	for _, c := range all {
		switch c.Name {
		case "stopId":
			rec.StopID = c.Value
		case "timestamp":
			ts, err := time.Parse(time.RFC3339Nano, c.Value)
			if err != nil {
				return fmt.Errorf("flat record: bad timestamp %q: %w", c.Value, err)
			}
			rec.Timestamp = ts
		case "rowIndex":
			idx, err := strconv.Atoi(c.Value)
			if err != nil {
				return fmt.Errorf("flat record: bad rowIndex %q: %w", c.Value, err)
			}
			rec.RowIndex = idx
		default:
			if name, ok := strings.CutPrefix(c.Name, "column:"); ok && reservedKeys[name] {
				c.Name = name
			}
			rec.Row = append(rec.Row, c)
		}
	}

	*r = rec
	return nil
}
