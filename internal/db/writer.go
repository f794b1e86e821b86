package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/luas-archive/collector/internal/batch"
)

// StoreBatch inserts a sealed batch and its arrival rows in one transaction
func (db *DB) StoreBatch(ctx context.Context, b *batch.BatchSnapshot) error {
	if !b.Sealed() {
		return fmt.Errorf("batch %s is not sealed", b.ID)
	}

	document, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO luas_snapshots (
			snapshot_id, captured_at_utc, expected_count, received_count,
			stop_count, row_count, partial, document
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.CapturedAt.UTC().Format(timestampLayout), b.ExpectedCount, b.ReceivedCount,
		len(b.Stops), b.RowCount(), b.Partial, string(document),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", b.ID, err)
	}

	rowStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO luas_forecast_rows (
			snapshot_id, stop_id, row_index, captured_at_utc, message, row_json
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare row statement: %w", err)
	}
	defer rowStmt.Close()

	for _, s := range b.Stops {
		capturedAt := s.CapturedAt.UTC().Format(timestampLayout)
		var message *string
		if s.Message != "" {
			message = &s.Message
		}

		for i, row := range s.Rows {
			rowJSON, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("failed to encode row %d of stop %s: %w", i, s.StopID, err)
			}
			if _, err := rowStmt.ExecContext(ctx, b.ID, s.StopID, i, capturedAt, message, string(rowJSON)); err != nil {
				return fmt.Errorf("failed to insert row %d of stop %s: %w", i, s.StopID, err)
			}
		}
	}

	return tx.Commit()
}

// StoredSnapshot is a summary row of luas_snapshots
type StoredSnapshot struct {
	SnapshotID    string
	CapturedAt    time.Time
	ExpectedCount int
	ReceivedCount int
	StopCount     int
	RowCount      int
	Partial       bool
}

// LatestSnapshot returns the most recently captured batch, or nil when empty
func (db *DB) LatestSnapshot(ctx context.Context) (*StoredSnapshot, error) {
	var s StoredSnapshot
	var capturedAt string
	err := db.conn.QueryRowContext(ctx, `
		SELECT snapshot_id, captured_at_utc, expected_count, received_count, stop_count, row_count, partial
		FROM luas_snapshots
		ORDER BY captured_at_utc DESC
		LIMIT 1
	`).Scan(&s.SnapshotID, &capturedAt, &s.ExpectedCount, &s.ReceivedCount, &s.StopCount, &s.RowCount, &s.Partial)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	s.CapturedAt, err = time.Parse(timestampLayout, capturedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse captured_at %q: %w", capturedAt, err)
	}
	return &s, nil
}

// CountRows returns the number of stored arrival rows for a stop
func (db *DB) CountRows(ctx context.Context, stopID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM luas_forecast_rows WHERE stop_id = ?", stopID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows for stop %s: %w", stopID, err)
	}
	return n, nil
}
