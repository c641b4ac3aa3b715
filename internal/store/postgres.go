// Package store archives the analyzer's bucketed output to Postgres
// (SPEC_FULL.md §3.5), adapted from the teacher's internal/database/db.go
// Connect/Upsert pattern.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps a Postgres connection pool.
type DB struct {
	*sql.DB
}

// Connect opens a connection and verifies it with a ping, mirroring the
// teacher's database.Connect.
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// EnsureSchema creates the flow_buckets table if it doesn't already exist.
// The analyzer runs this once at startup rather than shipping a separate
// migrations directory, since this is its only table.
func (db *DB) EnsureSchema() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS flow_buckets (
			run_id TEXT NOT NULL,
			t BIGINT NOT NULL,
			duration DOUBLE PRECISION NOT NULL,
			bps BIGINT NOT NULL,
			bytes BIGINT NOT NULL,
			tx_ips BIGINT NOT NULL,
			txrx_ips BIGINT NOT NULL,
			PRIMARY KEY (run_id, t)
		)
	`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create flow_buckets table: %w", err)
	}
	return nil
}

// UpsertBucket stores one bucket row under runID, the identifier the
// analyzer assigns to a single invocation (its input log file path).
func (db *DB) UpsertBucket(runID string, t int64, duration float64, bps, bytesTotal, txIPs, txRxIPs int64) error {
	const query = `
		INSERT INTO flow_buckets (run_id, t, duration, bps, bytes, tx_ips, txrx_ips)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, t) DO UPDATE
		SET duration = EXCLUDED.duration,
		    bps = EXCLUDED.bps,
		    bytes = EXCLUDED.bytes,
		    tx_ips = EXCLUDED.tx_ips,
		    txrx_ips = EXCLUDED.txrx_ips
	`
	_, err := db.Exec(query, runID, t, duration, bps, bytesTotal, txIPs, txRxIPs)
	if err != nil {
		return fmt.Errorf("failed to upsert flow bucket: %w", err)
	}
	return nil
}
