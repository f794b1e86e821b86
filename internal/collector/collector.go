package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/luas-archive/collector/internal/batch"
	"github.com/luas-archive/collector/internal/metrics"
	"github.com/luas-archive/collector/internal/snapshot"
)

// sinkTimeout bounds how long a sink may take to store one batch
const sinkTimeout = 30 * time.Second

// Registry supplies the stop identifiers for a cycle
type Registry interface {
	IDs() []string
}

// Sink receives every sealed batch after it is written to disk
type Sink interface {
	StoreBatch(ctx context.Context, b *batch.BatchSnapshot) error
}

// BatchSummary describes the most recent sealed batch
type BatchSummary struct {
	ID            string              `json:"id"`
	CapturedAt    time.Time           `json:"capturedAt"`
	ExpectedCount int                 `json:"expectedCount"`
	ReceivedCount int                 `json:"receivedCount"`
	StopCount     int                 `json:"stopCount"`
	RowCount      int                 `json:"rowCount"`
	Partial       bool                `json:"partial"`
	Failures      []batch.StopFailure `json:"failures,omitempty"`
	NestedPath    string              `json:"nestedPath,omitempty"`
	FlatPath      string              `json:"flatPath,omitempty"`
	WriteError    string              `json:"writeError,omitempty"`
	Duration      string              `json:"duration"`
}

// Collector runs collection cycles: fetch every stop, write the snapshot
// files and hand the batch to the configured sinks
type Collector struct {
	registry   Registry
	aggregator *batch.Aggregator
	writer     *snapshot.Writer
	sinks      map[string]Sink
	stats      *metrics.CycleStats

	mu   sync.RWMutex
	last *BatchSummary
}

// New creates a new collector
func New(registry Registry, aggregator *batch.Aggregator, writer *snapshot.Writer) *Collector {
	return &Collector{
		registry:   registry,
		aggregator: aggregator,
		writer:     writer,
		sinks:      make(map[string]Sink),
		stats:      &metrics.CycleStats{},
	}
}

// AddSink registers a downstream consumer of sealed batches
func (c *Collector) AddSink(name string, sink Sink) {
	c.sinks[name] = sink
}

// RunCycle collects one batch. Failures after sealing are logged and never
// stop future cycles. A batch cut short by ctx cancellation is neither written
// nor handed to the sinks.
func (c *Collector) RunCycle(ctx context.Context) *batch.BatchSnapshot {
	started := time.Now()

	b := c.aggregator.Collect(ctx, c.registry.IDs())
	took := time.Since(started)

	if ctx.Err() != nil && len(b.Stops) < b.ExpectedCount {
		log.Printf("Collector: batch %s interrupted with %d/%d stops, discarded",
			b.ID, len(b.Stops), b.ExpectedCount)
		return b
	}

	summary := &BatchSummary{
		ID:            b.ID,
		CapturedAt:    b.CapturedAt,
		ExpectedCount: b.ExpectedCount,
		ReceivedCount: b.ReceivedCount,
		StopCount:     len(b.Stops),
		RowCount:      b.RowCount(),
		Partial:       b.Partial,
		Failures:      b.Failures,
		Duration:      took.Round(time.Millisecond).String(),
	}

	paths, err := c.writer.Write(b)
	if err != nil {
		log.Printf("Snapshot: failed to write batch %s: %v", b.ID, err)
		summary.WriteError = err.Error()
	} else {
		summary.NestedPath = paths.Nested
		summary.FlatPath = paths.Flat
	}

	for name, sink := range c.sinks {
		// a complete batch is still stored while shutting down
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
		if err := sink.StoreBatch(sinkCtx, b); err != nil {
			log.Printf("Collector: %s sink failed for batch %s: %v", name, b.ID, err)
		}
		cancel()
	}

	c.stats.Observe(b.CapturedAt, took, b.ExpectedCount, len(b.Stops), summary.RowCount, err != nil)

	c.mu.Lock()
	c.last = summary
	c.mu.Unlock()

	log.Printf("Collector: batch %s sealed with %d/%d stops, %d rows in %s",
		b.ID, len(b.Stops), b.ExpectedCount, summary.RowCount, summary.Duration)
	return b
}

// LastBatch returns the summary of the most recent cycle, nil before the first
func (c *Collector) LastBatch() *BatchSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Stats returns running statistics over completed cycles
func (c *Collector) Stats() metrics.CycleSummary {
	return c.stats.Summary()
}
