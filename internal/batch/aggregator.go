package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/luas-archive/collector/internal/realtime/luas"
)

// StopSource fetches and parses a single stop
type StopSource interface {
	FetchStop(ctx context.Context, stopID string) (*luas.StopSnapshot, error)
}

// Options configures an Aggregator
type Options struct {
	Policy      FailurePolicy
	Retries     int // extra attempts per failed stop under PolicyRetry
	MaxInFlight int // concurrent stop fetches per cycle, 0 for no bound
	Location    *time.Location
}

// Aggregator runs one fetch per stop concurrently and seals the results
// into a BatchSnapshot once every stop has resolved
type Aggregator struct {
	source StopSource
	opts   Options
	now    func() time.Time
}

// NewAggregator creates a new batch aggregator
func NewAggregator(source StopSource, opts Options) *Aggregator {
	if opts.Policy == "" {
		opts.Policy = PolicyDrop
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Aggregator{
		source: source,
		opts:   opts,
		now:    time.Now,
	}
}

// Collect fetches every stop and returns the sealed batch.
// Stop failures never abort the batch; they are resolved according to the
// failure policy. Duplicate ids are dispatched once.
func (a *Aggregator) Collect(ctx context.Context, stopIDs []string) *BatchSnapshot {
	ids := dedupe(stopIDs)
	acc := newAccumulator(uuid.New().String(), a.now().UTC(), ids)

	g := new(errgroup.Group)
	if a.opts.MaxInFlight > 0 {
		g.SetLimit(a.opts.MaxInFlight)
	}

	for _, id := range ids {
		g.Go(func() error {
			snap, attempts, err := a.fetch(ctx, id)
			if rerr := acc.resolve(id, snap, attempts, err); rerr != nil {
				log.Printf("Batch: %v", rerr)
			}
			return nil
		})
	}
	_ = g.Wait()

	b := acc.build(a.opts.Policy)
	if err := b.Seal(a.opts.Location); err != nil {
		// unreachable while every dispatched task resolves exactly once
		log.Printf("Batch: %v", err)
	}
	return b
}

// fetch runs the stop source, retrying under PolicyRetry
func (a *Aggregator) fetch(ctx context.Context, stopID string) (*luas.StopSnapshot, int, error) {
	attempts := 1
	if a.opts.Policy == PolicyRetry && a.opts.Retries > 0 {
		attempts += a.opts.Retries
	}

	var err error
	for i := 1; i <= attempts; i++ {
		var snap *luas.StopSnapshot
		snap, err = a.safeFetch(ctx, stopID)
		if err == nil {
			return snap, i, nil
		}
		if ctx.Err() != nil || i == attempts {
			return nil, i, err
		}
		log.Printf("Batch: stop %s attempt %d failed, retrying: %v", stopID, i, err)
	}
	return nil, attempts, err
}

// safeFetch turns a panicking source into a stop failure
func (a *Aggregator) safeFetch(ctx context.Context, stopID string) (snap *luas.StopSnapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = fmt.Errorf("stop %s: panic: %v", stopID, r)
		}
	}()
	snap, err = a.source.FetchStop(ctx, stopID)
	if err == nil && snap == nil {
		err = fmt.Errorf("stop %s: no snapshot returned", stopID)
	}
	return snap, err
}

// accumulator collects per-stop outcomes from concurrent tasks
type accumulator struct {
	mu         sync.Mutex
	id         string
	capturedAt time.Time
	order      []string
	pending    map[string]bool
	snapshots  map[string]*luas.StopSnapshot
	failures   map[string]StopFailure
	received   int
}

func newAccumulator(id string, capturedAt time.Time, ids []string) *accumulator {
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	return &accumulator{
		id:         id,
		capturedAt: capturedAt,
		order:      ids,
		pending:    pending,
		snapshots:  make(map[string]*luas.StopSnapshot),
		failures:   make(map[string]StopFailure),
	}
}

// resolve records the outcome of one stop. Each dispatched stop resolves once.
func (acc *accumulator) resolve(stopID string, snap *luas.StopSnapshot, attempts int, err error) error {
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if !acc.pending[stopID] {
		return fmt.Errorf("stop %s resolved twice or was never dispatched", stopID)
	}
	delete(acc.pending, stopID)
	acc.received++

	if err != nil {
		log.Printf("Batch: stop %s excluded: %v", stopID, err)
		acc.failures[stopID] = StopFailure{
			StopID:   stopID,
			Kind:     failureKind(err),
			Error:    err.Error(),
			Attempts: attempts,
		}
		return nil
	}

	acc.snapshots[stopID] = snap
	return nil
}

// build assembles the batch in registry order
func (acc *accumulator) build(policy FailurePolicy) *BatchSnapshot {
	acc.mu.Lock()
	defer acc.mu.Unlock()

	b := &BatchSnapshot{
		ID:            acc.id,
		CapturedAt:    acc.capturedAt,
		ExpectedCount: len(acc.order),
		ReceivedCount: acc.received,
		Stops:         make([]luas.StopSnapshot, 0, len(acc.snapshots)),
	}

	for _, id := range acc.order {
		if snap, ok := acc.snapshots[id]; ok {
			b.Stops = append(b.Stops, *snap)
			continue
		}
		if f, ok := acc.failures[id]; ok && policy != PolicyDrop {
			b.Failures = append(b.Failures, f)
		}
	}
	b.Partial = len(b.Failures) > 0

	return b
}

func failureKind(err error) string {
	var ff *luas.FetchFailure
	var pf *luas.ParseFailure
	switch {
	case errors.As(err, &ff):
		return FailureNetwork
	case errors.As(err, &pf):
		return FailureParse
	default:
		return FailureInternal
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			log.Printf("Batch: duplicate stop id %s ignored", id)
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
