package luas

import (
	"errors"
	"fmt"
)

// ErrNoTable is returned when a page contains no table with header cells
var ErrNoTable = errors.New("no forecast table found")

// ErrPageTooLarge is the cause of a FetchFailure for a page over the size cap
var ErrPageTooLarge = errors.New("forecast page too large")

// FetchFailure reports a failed request for a stop's forecast page
type FetchFailure struct {
	StopID     string
	StatusCode int // 0 when no response was received
	Cause      error
}

func (f *FetchFailure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("fetch stop %s: status %d", f.StopID, f.StatusCode)
	}
	return fmt.Sprintf("fetch stop %s: %v", f.StopID, f.Cause)
}

func (f *FetchFailure) Unwrap() error {
	return f.Cause
}

// ParseFailure reports markup that could not be turned into forecast rows.
// RowIndex is the zero-based position of the dropped row among the upstream
// data rows, or -1 when the whole page was unusable. Kept rows are numbered
// again from zero in StopSnapshot.Rows, so after a drop the two differ.
type ParseFailure struct {
	StopID   string
	RowIndex int
	Cause    error
}

func (f *ParseFailure) Error() string {
	if f.RowIndex >= 0 {
		return fmt.Sprintf("parse stop %s row %d: %v", f.StopID, f.RowIndex, f.Cause)
	}
	return fmt.Sprintf("parse stop %s: %v", f.StopID, f.Cause)
}

func (f *ParseFailure) Unwrap() error {
	return f.Cause
}
