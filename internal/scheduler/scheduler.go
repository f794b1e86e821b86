package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// OverlapPolicy decides what happens when a tick fires while a cycle is still running
type OverlapPolicy string

const (
	// SkipIfBusy drops a tick while any cycle is running
	SkipIfBusy OverlapPolicy = "skip"
	// BoundedOverlap lets up to MaxConcurrent cycles run at once, each with its own batch
	BoundedOverlap OverlapPolicy = "overlap"
)

// ParseOverlapPolicy maps a config value to an OverlapPolicy
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch p := OverlapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SkipIfBusy, BoundedOverlap:
		return p, nil
	case "":
		return SkipIfBusy, nil
	default:
		return "", fmt.Errorf("unknown overlap policy %q", s)
	}
}

// CycleFunc runs one collection cycle
type CycleFunc func(ctx context.Context)

// Options configures a Scheduler
type Options struct {
	Interval      time.Duration
	Policy        OverlapPolicy
	MaxConcurrent int  // only used by BoundedOverlap
	RunOnStart    bool // fire one cycle immediately
}

// Scheduler fires a cycle every interval without waiting for the previous one
type Scheduler struct {
	opts  Options
	cycle CycleFunc
	slots chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	started int
	skipped int
}

// New creates a new scheduler
func New(opts Options, cycle CycleFunc) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Policy == "" {
		opts.Policy = SkipIfBusy
	}

	limit := 1
	if opts.Policy == BoundedOverlap && opts.MaxConcurrent > 1 {
		limit = opts.MaxConcurrent
	}

	return &Scheduler{
		opts:  opts,
		cycle: cycle,
		slots: make(chan struct{}, limit),
	}
}

// Run fires cycles until ctx is cancelled, then waits for running cycles to return
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	if s.opts.RunOnStart {
		s.fire(ctx)
	}

	for {
		select {
		case <-ticker.C:
			s.fire(ctx)
		case <-ctx.Done():
			log.Println("Scheduler: stopping, waiting for running cycles")
			s.wg.Wait()
			log.Println("Scheduler: stopped")
			return
		}
	}
}

// fire starts a cycle in the background if a slot is free
func (s *Scheduler) fire(ctx context.Context) {
	select {
	case s.slots <- struct{}{}:
	default:
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		log.Printf("Scheduler: %d cycle(s) still running, skipping tick (policy=%s)", cap(s.slots), s.opts.Policy)
		return
	}

	s.mu.Lock()
	s.started++
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		s.cycle(ctx)
	}()
}

// Stats returns how many cycles were started and how many ticks were skipped
func (s *Scheduler) Stats() (started, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.skipped
}
