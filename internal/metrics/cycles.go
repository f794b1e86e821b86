package metrics

import (
	"sync"
	"time"
)

// CycleStats tracks running statistics over completed collection cycles
type CycleStats struct {
	mu            sync.Mutex
	duration      WelfordState // seconds
	rows          WelfordState
	successRatio  WelfordState
	failedStops   int
	writeFailures int
	lastCycleAt   time.Time
}

// CycleSummary is a point-in-time copy of CycleStats
type CycleSummary struct {
	Cycles             int       `json:"cycles"`
	MeanDurationSecs   float64   `json:"meanDurationSeconds"`
	StdDevDurationSecs float64   `json:"stddevDurationSeconds"`
	MeanRows           float64   `json:"meanRows"`
	MeanSuccessRatio   float64   `json:"meanSuccessRatio"`
	FailedStops        int       `json:"failedStops"`
	WriteFailures      int       `json:"writeFailures"`
	LastCycleAt        time.Time `json:"lastCycleAt"`
}

// Observe records one sealed cycle
func (s *CycleStats) Observe(at time.Time, took time.Duration, expected, succeeded, rows int, writeFailed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.duration.Update(took.Seconds())
	s.rows.Update(float64(rows))
	if expected > 0 {
		s.successRatio.Update(float64(succeeded) / float64(expected))
	}
	s.failedStops += expected - succeeded
	if writeFailed {
		s.writeFailures++
	}
	if at.After(s.lastCycleAt) {
		s.lastCycleAt = at
	}
}

// Summary returns the current statistics
func (s *CycleStats) Summary() CycleSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return CycleSummary{
		Cycles:             s.duration.Count,
		MeanDurationSecs:   s.duration.Mean,
		StdDevDurationSecs: s.duration.StdDev(),
		MeanRows:           s.rows.Mean,
		MeanSuccessRatio:   s.successRatio.Mean,
		FailedStops:        s.failedStops,
		WriteFailures:      s.writeFailures,
		LastCycleAt:        s.lastCycleAt,
	}
}
