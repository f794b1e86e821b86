package batch

import (
	"fmt"
	"time"
)

// PartitionKey locates a batch's snapshot files
type PartitionKey struct {
	Dir      string // yyyy-mm-dd-hh
	FileName string // luas-<epoch-ms>.json
}

// PartitionFor derives the partition key of a batch captured at t.
// The directory uses the wall clock in loc (UTC when nil); the file name uses
// the instant in milliseconds, which does not depend on loc.
func PartitionFor(t time.Time, loc *time.Location) PartitionKey {
	if loc == nil {
		loc = time.UTC
	}
	return PartitionKey{
		Dir:      t.In(loc).Format("2006-01-02-15"),
		FileName: fmt.Sprintf("luas-%d.json", t.UnixMilli()),
	}
}
