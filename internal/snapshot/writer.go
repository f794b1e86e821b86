package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/luas-archive/collector/internal/batch"
	"github.com/luas-archive/collector/internal/realtime/luas"
)

// FlatDir is the subdirectory holding the per-row documents
const FlatDir = "flat"

// ErrNotSealed is returned when asked to persist a batch that is still collecting
var ErrNotSealed = errors.New("batch is not sealed")

// Reserved keys of a flat record; colliding columns are prefixed with "column:"
var reservedKeys = map[string]bool{"stopId": true, "timestamp": true, "rowIndex": true}

// Writer persists sealed batches under a historic root directory:
//
//	<root>/<yyyy>-<mm>-<dd>-<hh>/luas-<epoch-ms>.json       (per stop)
//	<root>/flat/<yyyy>-<mm>-<dd>-<hh>/luas-<epoch-ms>.json  (per row)
type Writer struct {
	root string
}

// NewWriter creates a snapshot writer rooted at dir
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Paths are the files written for one batch
type Paths struct {
	Nested string
	Flat   string
}

// PathsFor returns where a batch with the given key is written
func (w *Writer) PathsFor(key batch.PartitionKey) Paths {
	return Paths{
		Nested: filepath.Join(w.root, key.Dir, key.FileName),
		Flat:   filepath.Join(w.root, FlatDir, key.Dir, key.FileName),
	}
}

// Write stores both documents of a sealed batch. The documents are written
// independently: a failure on one does not stop the other, and the returned
// error joins both failures.
func (w *Writer) Write(b *batch.BatchSnapshot) (Paths, error) {
	if !b.Sealed() {
		return Paths{}, ErrNotSealed
	}
	paths := w.PathsFor(b.Key)

	nestedErr := writeJSON(paths.Nested, nestedDocument(b))
	flatErr := writeJSON(paths.Flat, flatten(b))

	return paths, errors.Join(nestedErr, flatErr)
}

// nestedDocument never encodes a nil slice as null
func nestedDocument(b *batch.BatchSnapshot) []luas.StopSnapshot {
	if b.Stops == nil {
		return []luas.StopSnapshot{}
	}
	return b.Stops
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	// an existing directory from an earlier cycle in the same hour is reused
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FlatRecord is one arrival row with its stop and capture time.
// RowIndex is the row's position in StopSnapshot.Rows, counting kept rows
// only; it is not the upstream row number a luas.ParseFailure reports.
type FlatRecord struct {
	StopID    string
	Timestamp time.Time
	RowIndex  int
	Row       luas.ForecastRow
}

func flatten(b *batch.BatchSnapshot) []FlatRecord {
	records := make([]FlatRecord, 0, b.RowCount())
	for _, s := range b.Stops {
		for i, row := range s.Rows {
			records = append(records, FlatRecord{
				StopID:    s.StopID,
				Timestamp: s.CapturedAt,
				RowIndex:  i,
				Row:       row,
			})
		}
	}
	return records
}

// MarshalJSON writes the record as a single object: stopId, timestamp and
// rowIndex first, then the row's columns in table order.
func (r FlatRecord) MarshalJSON() ([]byte, error) {
	head, err := json.Marshal(struct {
		StopID    string    `json:"stopId"`
		Timestamp time.Time `json:"timestamp"`
		RowIndex  int       `json:"rowIndex"`
	}{r.StopID, r.Timestamp, r.RowIndex})
	if err != nil {
		return nil, err
	}

	cells := make(luas.ForecastRow, len(r.Row))
	for i, c := range r.Row {
		if reservedKeys[c.Name] {
			c.Name = "column:" + c.Name
		}
		cells[i] = c
	}
	tail, err := json.Marshal(cells)
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return head, nil
	}

	var buf bytes.Buffer
	buf.Write(head[:len(head)-1])
	buf.WriteByte(',')
	buf.Write(tail[1:])
	return buf.Bytes(), nil
}
