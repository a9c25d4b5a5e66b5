package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/position"
)

// fixed-width UTC so captured_at compares lexically
const historyTimeFormat = "2006-01-02T15:04:05.000Z"

// FixRecord is one stored fix
type FixRecord struct {
	ID         int64     `json:"id"`
	CapturedAt time.Time `json:"capturedAt"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKmh   float64   `json:"speedKmh"`
	Endpoint   string    `json:"endpoint"`
}

// RecordFix appends an accepted fix to the history
func (db *DB) RecordFix(ctx context.Context, fix position.Fix, endpoint string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO fix_history (captured_at, latitude, longitude, speed_kmh, endpoint) VALUES (?, ?, ?, ?, ?)",
		fix.CapturedAt.UTC().Format(historyTimeFormat), fix.Latitude, fix.Longitude, fix.SpeedKmh, endpoint,
	)
	if err != nil {
		return fmt.Errorf("failed to record fix: %w", err)
	}
	return nil
}

// RecentFixes returns up to limit fixes, newest first
func (db *DB) RecentFixes(ctx context.Context, limit int) ([]FixRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, captured_at, latitude, longitude, speed_kmh, endpoint
		FROM fix_history
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fix history: %w", err)
	}
	defer rows.Close()

	records := make([]FixRecord, 0, limit)
	for rows.Next() {
		var r FixRecord
		var capturedAt string
		if err := rows.Scan(&r.ID, &capturedAt, &r.Latitude, &r.Longitude, &r.SpeedKmh, &r.Endpoint); err != nil {
			return nil, fmt.Errorf("failed to scan fix: %w", err)
		}
		if r.CapturedAt, err = time.Parse(historyTimeFormat, capturedAt); err != nil {
			return nil, fmt.Errorf("bad captured_at %q: %w", capturedAt, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Cleanup deletes fixes captured before now minus retention
func (db *DB) Cleanup(ctx context.Context, retention time.Duration, now time.Time) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	cutoff := now.Add(-retention).UTC().Format(historyTimeFormat)
	result, err := db.conn.ExecContext(ctx, "DELETE FROM fix_history WHERE captured_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup fix_history: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		log.Printf("Cleanup: deleted %d fixes older than %v", rows, retention)
	}
	return nil
}
