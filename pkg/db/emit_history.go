package db

import (
	"database/sql"
	"fmt"
	"time"
)

// EmitRecord represents one hourly row appended to a takings file.
type EmitRecord struct {
	ID           int64
	SiteID       string
	Day          string
	HourWindow   string
	TotalTakings float64
	Customers    int
	OutputFile   string
	EmittedAt    time.Time
}

// EmitHistory manages emit-history and capture operations.
type EmitHistory struct {
	conn *Connection
}

// NewEmitHistory creates a new EmitHistory instance.
func NewEmitHistory(conn *Connection) *EmitHistory {
	return &EmitHistory{conn: conn}
}

// RecordEmit records an appended hourly row.
func (h *EmitHistory) RecordEmit(record EmitRecord) error {
	query := `
		INSERT INTO emit_history (site_id, day, hour_window, total_takings, customers, output_file)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id, day, hour_window) DO UPDATE SET
			total_takings = excluded.total_takings,
			customers = excluded.customers,
			output_file = excluded.output_file,
			emitted_at = CURRENT_TIMESTAMP
	`

	_, err := h.conn.Exec(query,
		record.SiteID,
		record.Day,
		record.HourWindow,
		record.TotalTakings,
		record.Customers,
		record.OutputFile,
	)
	if err != nil {
		return fmt.Errorf("failed to record emit: %w", err)
	}
	return nil
}

// HasEmitted checks whether a window has already been written for a site
// and day. Used as the duplicate-row backstop ahead of every append.
func (h *EmitHistory) HasEmitted(siteID, day, hourWindow string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM emit_history
		WHERE site_id = ? AND day = ? AND hour_window = ?
	`

	var count int
	err := h.conn.QueryRow(query, siteID, day, hourWindow).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check emit history: %w", err)
	}
	return count > 0, nil
}

// CaptureChunk stores a raw serial chunk for offline replay.
func (h *EmitHistory) CaptureChunk(dialect, chunk string) error {
	_, err := h.conn.Exec(
		`INSERT INTO raw_chunks (dialect, chunk) VALUES (?, ?)`,
		dialect, []byte(chunk),
	)
	if err != nil {
		return fmt.Errorf("failed to capture chunk: %w", err)
	}
	return nil
}

// Stats represents emit-history statistics.
type Stats struct {
	TotalRows   int
	TotalSites  int
	TotalChunks int
	LastEmit    sql.NullString
}

// GetStats retrieves emit-history statistics.
func (h *EmitHistory) GetStats() (*Stats, error) {
	var stats Stats

	err := h.conn.QueryRow(`SELECT COUNT(*) FROM emit_history`).Scan(&stats.TotalRows)
	if err != nil {
		return nil, fmt.Errorf("failed to get row count: %w", err)
	}

	err = h.conn.QueryRow(`SELECT COUNT(DISTINCT site_id) FROM emit_history`).Scan(&stats.TotalSites)
	if err != nil {
		return nil, fmt.Errorf("failed to get site count: %w", err)
	}

	err = h.conn.QueryRow(`SELECT COUNT(*) FROM raw_chunks`).Scan(&stats.TotalChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk count: %w", err)
	}

	err = h.conn.QueryRow(`SELECT MAX(emitted_at) FROM emit_history`).Scan(&stats.LastEmit)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last emit time: %w", err)
	}

	return &stats, nil
}

// GetRecordsForDay retrieves the emitted rows for a site and day, in
// window order. Used by the stats command's per-day breakdown.
func (h *EmitHistory) GetRecordsForDay(siteID, day string) ([]EmitRecord, error) {
	query := `
		SELECT id, site_id, day, hour_window, total_takings, customers, output_file, emitted_at
		FROM emit_history
		WHERE site_id = ? AND day = ?
		ORDER BY hour_window
	`

	rows, err := h.conn.Query(query, siteID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get emit records: %w", err)
	}
	defer rows.Close()

	var records []EmitRecord
	for rows.Next() {
		var r EmitRecord
		if err := rows.Scan(
			&r.ID,
			&r.SiteID,
			&r.Day,
			&r.HourWindow,
			&r.TotalTakings,
			&r.Customers,
			&r.OutputFile,
			&r.EmittedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan emit record: %w", err)
		}
		records = append(records, r)
	}

	return records, nil
}
