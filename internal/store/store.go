// Package store defines the classification store contract (spec.md
// §6.3) and a ClickHouse-backed implementation of it, grounded in the
// teacher's internal/output/clickhouse.go connection handling.
package store

import "context"

// Store is the authoritative classification backend. Names passed to
// CheckBlacklist/CheckWhitelist are always a non-empty, deduplicated
// set; the returned map has exactly one entry per name.
type Store interface {
	CheckBlacklist(ctx context.Context, names []string) (map[string]bool, error)
	CheckWhitelist(ctx context.Context, names []string) (map[string]bool, error)
	RecordBlacklistHit(ctx context.Context, name string, unixSeconds int64) error
	Close() error
}
