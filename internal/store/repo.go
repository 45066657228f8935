package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jobstr/harvester/internal/note"
)

// Archive accumulates harvested notes across cycles.
type Archive interface {
	// UpsertNotes stores records not yet archived and returns how many were
	// new. Records are keyed by their structural fingerprint.
	UpsertNotes(ctx context.Context, records []note.Record) (int, error)

	// ListNotes returns archived notes with cursor-based pagination.
	// Results are ordered by created_at DESC, id DESC, fingerprint DESC.
	ListNotes(ctx context.Context, limit int, cursor *Cursor) (items []note.Record, next *Cursor, err error)

	// GetNote retrieves a note by event id. Returns ErrNotFound if absent.
	GetNote(ctx context.Context, id string) (*note.Record, error)

	Close() error
}

// Open selects a backend from the DSN: postgres:// and postgresql:// use
// PostgreSQL, sqlite:// or a path ending in .db uses SQLite.
func Open(ctx context.Context, dsn string) (Archive, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresArchive(pool), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasSuffix(dsn, ".db"):
		return OpenSQLite(ctx, dsn)
	}
	return nil, fmt.Errorf("unsupported archive dsn %q", redact(dsn))
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i+3] + "..."
	}
	return "..."
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 50
	}
	return limit
}
