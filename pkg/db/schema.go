// Package db provides SQLite persistence for the emit history and for
// raw chunk captures taken in monitor mode.
package db

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Emit history table
-- One record per hourly row appended to a takings file. The UNIQUE
-- constraint is the backstop against emitting the same window twice.
CREATE TABLE IF NOT EXISTS emit_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id TEXT NOT NULL,
    day TEXT NOT NULL,                 -- yyyymmdd
    hour_window TEXT NOT NULL,         -- HH.00-HH.00
    total_takings REAL NOT NULL,
    customers INTEGER NOT NULL,
    output_file TEXT NOT NULL,
    emitted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(site_id, day, hour_window)
);

CREATE INDEX IF NOT EXISTS idx_emit_history_site_day
    ON emit_history(site_id, day);

-- Raw chunk capture table
-- Populated only in monitor mode, so field problems can be replayed
-- offline.
CREATE TABLE IF NOT EXISTS raw_chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dialect TEXT NOT NULL,
    chunk BLOB NOT NULL,
    received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema initializes the database schema.
// It creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(Schema); err != nil {
		return err
	}
	return nil
}
