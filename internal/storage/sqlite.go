package storage

import (
	"context"
	"fmt"

	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/SmallFCraft/script-auto-earn-with-coins-recaptcha-solver-sub001/internal/types"
)

// sqliteStorage implements Storage using SQLite
type sqliteStorage struct {
	db     *sql.DB
	logger types.Logger
}

// NewSQLite creates a new SQLite storage instance
func NewSQLite(dsn string, logger types.Logger) (types.Storage, error) {
	if dsn == "" {
		dsn = "earnd.db"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &sqliteStorage{
		db:     db,
		logger: logger,
	}

	// Create tables
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *sqliteStorage) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS endpoints (
			kind TEXT NOT NULL,
			address TEXT NOT NULL,
			raw TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (kind, address)
		)`,
		`CREATE TABLE IF NOT EXISTS endpoint_stats (
			kind TEXT NOT NULL,
			address TEXT NOT NULL,
			total_requests INTEGER NOT NULL DEFAULT 0,
			successful_requests INTEGER NOT NULL DEFAULT 0,
			failures INTEGER NOT NULL DEFAULT 0,
			cumulative_response_time_ms INTEGER NOT NULL DEFAULT 0,
			average_response_time_ms INTEGER NOT NULL DEFAULT 0,
			last_used_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (kind, address)
		)`,
		`CREATE TABLE IF NOT EXISTS pools (
			kind TEXT PRIMARY KEY,
			saved_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_position ON endpoints(kind, position)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

func (s *sqliteStorage) LoadEndpoints(ctx context.Context, kind types.EndpointKind) ([]string, error) {
	// The pools row distinguishes a never-saved pool from one the
	// caller explicitly emptied
	var savedAt int64
	err := s.db.QueryRowContext(ctx, "SELECT saved_at FROM pools WHERE kind = ?", string(kind)).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check pool: %w", err)
	}

	query := `SELECT raw FROM endpoints WHERE kind = ? ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to load endpoints: %w", err)
	}
	defer rows.Close()

	endpoints := make([]string, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		endpoints = append(endpoints, raw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate endpoints: %w", err)
	}

	return endpoints, nil
}

func (s *sqliteStorage) SaveEndpoints(ctx context.Context, kind types.EndpointKind, endpoints []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM endpoints WHERE kind = ?", string(kind)); err != nil {
		return fmt.Errorf("failed to clear endpoints: %w", err)
	}

	query := `INSERT INTO endpoints (kind, address, raw, position) VALUES (?, ?, ?, ?)`
	for i, raw := range endpoints {
		address := addressOf(raw)
		if _, err := tx.ExecContext(ctx, query, string(kind), address, raw, i); err != nil {
			return fmt.Errorf("failed to insert endpoint: %w", err)
		}
	}

	marker := `INSERT INTO pools (kind, saved_at) VALUES (?, strftime('%s','now'))
	           ON CONFLICT(kind) DO UPDATE SET saved_at = excluded.saved_at`
	if _, err := tx.ExecContext(ctx, marker, string(kind)); err != nil {
		return fmt.Errorf("failed to mark pool: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit endpoints: %w", err)
	}

	return nil
}

func (s *sqliteStorage) LoadStats(ctx context.Context, kind types.EndpointKind) (map[string]*types.EndpointStats, error) {
	query := `SELECT address, total_requests, successful_requests, failures,
	          cumulative_response_time_ms, average_response_time_ms, last_used_at
	          FROM endpoint_stats WHERE kind = ?`

	rows, err := s.db.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]*types.EndpointStats)
	for rows.Next() {
		var address string
		var es types.EndpointStats

		err := rows.Scan(
			&address, &es.TotalRequests, &es.SuccessfulRequests, &es.ConsecutiveFailures,
			&es.CumulativeResponseTimeMs, &es.AverageResponseTimeMs, &es.LastUsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}

		stats[address] = &es
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats: %w", err)
	}

	if len(stats) == 0 {
		return nil, nil
	}

	return stats, nil
}

func (s *sqliteStorage) SaveStats(ctx context.Context, kind types.EndpointKind, stats map[string]*types.EndpointStats) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM endpoint_stats WHERE kind = ?", string(kind)); err != nil {
		return fmt.Errorf("failed to clear stats: %w", err)
	}

	query := `INSERT INTO endpoint_stats (kind, address, total_requests, successful_requests,
	          failures, cumulative_response_time_ms, average_response_time_ms, last_used_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for address, es := range stats {
		_, err := tx.ExecContext(ctx, query,
			string(kind), address, es.TotalRequests, es.SuccessfulRequests,
			es.ConsecutiveFailures, es.CumulativeResponseTimeMs,
			es.AverageResponseTimeMs, es.LastUsedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert stats: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats: %w", err)
	}

	return nil
}

// addressOf extracts the host:port prefix from a compact endpoint string
func addressOf(raw string) string {
	count := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			count++
			if count == 2 {
				return raw[:i]
			}
		}
	}
	return raw
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
