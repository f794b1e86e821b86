package luas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Cell is a single column value of a forecast row
type Cell struct {
	Name  string
	Value string
}

// ForecastRow is one arrival row keyed by the column names of the header row.
// Column order follows the upstream table and is kept when encoding to JSON.
type ForecastRow []Cell

// Get returns the value of the named column
func (r ForecastRow) Get(name string) (string, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// MarshalJSON encodes the row as a JSON object in column order
func (r ForecastRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping its key order.
// Non-string values are kept as their raw JSON text.
func (r *ForecastRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("forecast row: expected object, got %v", tok)
	}

	row := ForecastRow{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("forecast row: unexpected key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("forecast row: failed to decode %q: %w", key, err)
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = string(raw)
		}
		row = append(row, Cell{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = row
	return nil
}

// StopSnapshot holds the rows captured for one stop in one cycle
type StopSnapshot struct {
	StopID     string        `json:"stopId"`
	CapturedAt time.Time     `json:"timestamp"`
	RowCount   int           `json:"rowCount"`
	Message    string        `json:"message,omitempty"`
	Rows       []ForecastRow `json:"rows"`
}

// Extraction is the result of parsing one stop's forecast page
type Extraction struct {
	Columns     []string
	Rows        []ForecastRow
	Message     string
	RowFailures []*ParseFailure
}
