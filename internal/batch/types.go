package batch

import (
	"fmt"
	"strings"
	"time"

	"github.com/luas-archive/collector/internal/realtime/luas"
)

// FailurePolicy decides what a cycle does with stops that failed
type FailurePolicy string

const (
	// PolicyDrop omits failed stops from the batch without a trace
	PolicyDrop FailurePolicy = "drop"
	// PolicyPartial lists failed stops in the batch and marks it partial
	PolicyPartial FailurePolicy = "partial"
	// PolicyRetry re-attempts failed stops within the cycle, then behaves like PolicyPartial
	PolicyRetry FailurePolicy = "retry"
)

// ParseFailurePolicy maps a config value to a FailurePolicy
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyDrop, PolicyPartial, PolicyRetry:
		return p, nil
	case "":
		return PolicyDrop, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Failure kinds recorded on StopFailure
const (
	FailureNetwork  = "network"
	FailureParse    = "parse"
	FailureInternal = "internal"
)

// StopFailure records a stop that produced no snapshot in a cycle
type StopFailure struct {
	StopID   string `json:"stopId"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// BatchSnapshot is the aggregate of all stop results for one cycle
type BatchSnapshot struct {
	ID            string              `json:"id"`
	CapturedAt    time.Time           `json:"timestamp"`
	ExpectedCount int                 `json:"expectedCount"`
	ReceivedCount int                 `json:"receivedCount"`
	Stops         []luas.StopSnapshot `json:"stops"`
	Failures      []StopFailure       `json:"failures,omitempty"`
	Partial       bool                `json:"partial"`

	// Key is derived when the batch is sealed
	Key    PartitionKey `json:"-"`
	sealed bool
}

// Sealed reports whether every dispatched stop has resolved
func (b *BatchSnapshot) Sealed() bool {
	return b.sealed
}

// RowCount returns the number of arrival rows across all stops
func (b *BatchSnapshot) RowCount() int {
	n := 0
	for _, s := range b.Stops {
		n += s.RowCount
	}
	return n
}

// Seal freezes the batch once every expected stop has resolved and derives
// its partition key from the capture instant.
func (b *BatchSnapshot) Seal(loc *time.Location) error {
	if b.ReceivedCount != b.ExpectedCount {
		return fmt.Errorf("batch %s: %d of %d stops resolved", b.ID, b.ReceivedCount, b.ExpectedCount)
	}
	b.Key = PartitionFor(b.CapturedAt, loc)
	b.sealed = true
	return nil
}
