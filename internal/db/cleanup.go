package db

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Cleanup deletes snapshots older than the retention duration.
// Arrival rows go with their snapshot through ON DELETE CASCADE.
func (db *DB) Cleanup(ctx context.Context, retention time.Duration) error {
	if retention < time.Hour {
		retention = time.Hour
	}
	cutoff := time.Now().UTC().Add(-retention).Format(timestampLayout)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM luas_snapshots WHERE captured_at_utc < ?", cutoff,
	)
	if err != nil {
		return fmt.Errorf("failed to cleanup snapshots: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		log.Printf("Cleanup: deleted %d snapshots older than %v", rows, retention)
	}
	return nil
}
