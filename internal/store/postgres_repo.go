package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobstr/harvester/internal/note"
)

// PostgresArchive implements Archive using PostgreSQL.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a new PostgresArchive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

func (r *PostgresArchive) UpsertNotes(ctx context.Context, records []note.Record) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `INSERT INTO notes (fingerprint, id, pubkey, created_at, content, sig, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (fingerprint) DO NOTHING`

	inserted := 0
	for _, rec := range records {
		row, err := rowFromRecord(rec)
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, q,
			row.Fingerprint, row.ID, row.PubKey, row.CreatedAt, row.Content, row.Sig, row.Tags,
		)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", row.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *PostgresArchive) ListNotes(ctx context.Context, limit int, cursor *Cursor) ([]note.Record, *Cursor, error) {
	limit = clampLimit(limit)

	var (
		rows pgx.Rows
		err  error
	)
	if cursor != nil {
		const q = `SELECT fingerprint, id, pubkey, created_at, content, sig, tags FROM notes
WHERE (created_at, id, fingerprint) < ($1, $2, $3)
ORDER BY created_at DESC, id DESC, fingerprint DESC
LIMIT $4`
		rows, err = r.pool.Query(ctx, q, cursor.CreatedAt, cursor.ID, cursor.Fingerprint, limit+1)
	} else {
		const q = `SELECT fingerprint, id, pubkey, created_at, content, sig, tags FROM notes
ORDER BY created_at DESC, id DESC, fingerprint DESC
LIMIT $1`
		rows, err = r.pool.Query(ctx, q, limit+1)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var scanned []noteRow
	for rows.Next() {
		var row noteRow
		if err := rows.Scan(&row.Fingerprint, &row.ID, &row.PubKey, &row.CreatedAt, &row.Content, &row.Sig, &row.Tags); err != nil {
			return nil, nil, fmt.Errorf("scan: %w", err)
		}
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows: %w", err)
	}
	return page(scanned, limit)
}

func (r *PostgresArchive) GetNote(ctx context.Context, id string) (*note.Record, error) {
	const q = `SELECT fingerprint, id, pubkey, created_at, content, sig, tags FROM notes
WHERE id = $1 ORDER BY first_seen, fingerprint LIMIT 1`
	var row noteRow
	err := r.pool.QueryRow(ctx, q, id).Scan(&row.Fingerprint, &row.ID, &row.PubKey, &row.CreatedAt, &row.Content, &row.Sig, &row.Tags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query: %w", err)
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresArchive) Close() error {
	r.pool.Close()
	return nil
}

// page converts up to limit rows and derives the next cursor from the
// extra row fetched beyond the limit.
func page(rows []noteRow, limit int) ([]note.Record, *Cursor, error) {
	var next *Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		next = rows[limit-1].cursor()
	}
	items := make([]note.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, nil, err
		}
		items = append(items, rec)
	}
	return items, next, nil
}
