package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickhouseStore backs the classification store contract with two
// lookup tables (blacklist, whitelist) and a results table for
// blacklist-hit bookkeeping, queried the way the teacher's
// clickhouseConfig.connectClickhouse opens its connection: OpenDB
// plus a pooled *sql.DB.
type ClickhouseStore struct {
	db *sql.DB
}

// ClickhouseOptions is the subset of connection parameters the
// classification store needs out of the "database" connection string
// setting (spec.md §6.1); Addr is the only required field.
type ClickhouseOptions struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// NewClickhouseStore opens a pooled connection the way
// connectClickhouse does, without the teacher's indefinite retry
// loop — the classifier layers its own 3x1s retry on top of every
// call (spec.md §4.4), so a single dial attempt here is correct; a
// failure at startup is an ordinary initialization error.
func NewClickhouseStore(opts ClickhouseOptions) (*ClickhouseStore, error) {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	db.SetMaxIdleConns(16)
	db.SetMaxOpenConns(32)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: clickhouse ping: %w", err)
	}
	return &ClickhouseStore{db: db}, nil
}

func (s *ClickhouseStore) checkTable(ctx context.Context, table string, names []string) (map[string]bool, error) {
	hits := make(map[string]bool, len(names))
	for _, n := range names {
		hits[n] = false
	}
	if len(names) == 0 {
		return hits, nil
	}

	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		placeholders[i] = "?"
		args[i] = n
	}

	query := fmt.Sprintf("SELECT domain FROM %s WHERE domain IN (%s)", table, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", table, err)
		}
		hits[domain] = true
	}
	return hits, rows.Err()
}

// CheckBlacklist implements Store.
func (s *ClickhouseStore) CheckBlacklist(ctx context.Context, names []string) (map[string]bool, error) {
	return s.checkTable(ctx, "blacklist", names)
}

// CheckWhitelist implements Store.
func (s *ClickhouseStore) CheckWhitelist(ctx context.Context, names []string) (map[string]bool, error) {
	return s.checkTable(ctx, "whitelist", names)
}

// RecordBlacklistHit implements Store. It's the best-effort "results"
// write-back of spec.md §4.4: failures here are surfaced to the
// caller but never abort a flush.
func (s *ClickhouseStore) RecordBlacklistHit(ctx context.Context, name string, unixSeconds int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO results (domain, observed_at) VALUES (?, ?)", name, unixSeconds)
	if err != nil {
		return fmt.Errorf("store: record blacklist hit for %s: %w", name, err)
	}
	return nil
}

// Close implements Store.
func (s *ClickhouseStore) Close() error {
	return s.db.Close()
}
