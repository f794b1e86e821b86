package stops

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// ErrNoStops is returned when a stop list holds no identifiers
var ErrNoStops = errors.New("no stop identifiers loaded")

// Registry is the fixed, ordered list of stops polled every cycle
type Registry struct {
	ids []string
}

// NewRegistry creates a registry from identifiers, dropping blanks
func NewRegistry(ids []string) (*Registry, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoStops
	}
	return &Registry{ids: clean}, nil
}

// IDs returns a copy of the stop identifiers in load order
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len returns the number of stops
func (r *Registry) Len() int {
	return len(r.ids)
}

// LoadFile reads a tab-separated stop file. The first line is a header and
// the first column of every following line is the stop identifier.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stop file: %w", err)
	}
	defer f.Close()

	reg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	log.Printf("Stops: loaded %d stop identifiers from %s", reg.Len(), path)
	return reg, nil
}

// Load reads a tab-separated stop list from r
func Load(r io.Reader) (*Registry, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, ErrNoStops
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var ids []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read stop list: %w", err)
		}
		if len(record) > 0 {
			ids = append(ids, record[0])
		}
	}

	return NewRegistry(ids)
}
