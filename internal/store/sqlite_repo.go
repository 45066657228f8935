package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/jobstr/harvester/internal/note"
)

// SQLiteArchive implements Archive on a local SQLite file.
type SQLiteArchive struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the archive at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteArchive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	a := &SQLiteArchive{db: db}
	if err := a.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *SQLiteArchive) init(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notes (
			fingerprint TEXT PRIMARY KEY,
			id          TEXT NOT NULL,
			pubkey      TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			content     TEXT NOT NULL,
			sig         TEXT NOT NULL,
			tags        TEXT NOT NULL,
			first_seen  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_notes_order ON notes(created_at DESC, id DESC, fingerprint DESC);
		CREATE INDEX IF NOT EXISTS idx_notes_id ON notes(id);
	`)
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

func (a *SQLiteArchive) UpsertNotes(ctx context.Context, records []note.Record) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notes (fingerprint, id, pubkey, created_at, content, sig, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		row, err := rowFromRecord(rec)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, row.Fingerprint, row.ID, row.PubKey, row.CreatedAt, row.Content, row.Sig, string(row.Tags))
		if err != nil {
			return 0, fmt.Errorf("upserting note %s: %w", row.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (a *SQLiteArchive) ListNotes(ctx context.Context, limit int, cursor *Cursor) ([]note.Record, *Cursor, error) {
	limit = clampLimit(limit)

	query := "SELECT fingerprint, id, pubkey, created_at, content, sig, tags FROM notes"
	var args []any
	if cursor != nil {
		query += " WHERE (created_at, id, fingerprint) < (?, ?, ?)"
		args = append(args, cursor.CreatedAt, cursor.ID, cursor.Fingerprint)
	}
	query += " ORDER BY created_at DESC, id DESC, fingerprint DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("querying notes: %w", err)
	}
	defer rows.Close()

	var scanned []noteRow
	for rows.Next() {
		var (
			row  noteRow
			tags string
		)
		if err := rows.Scan(&row.Fingerprint, &row.ID, &row.PubKey, &row.CreatedAt, &row.Content, &row.Sig, &tags); err != nil {
			return nil, nil, fmt.Errorf("scanning note: %w", err)
		}
		row.Tags = []byte(tags)
		scanned = append(scanned, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return page(scanned, limit)
}

func (a *SQLiteArchive) GetNote(ctx context.Context, id string) (*note.Record, error) {
	var (
		row  noteRow
		tags string
	)
	err := a.db.QueryRowContext(ctx, `
		SELECT fingerprint, id, pubkey, created_at, content, sig, tags FROM notes
		WHERE id = ? ORDER BY first_seen, fingerprint LIMIT 1
	`, id).Scan(&row.Fingerprint, &row.ID, &row.PubKey, &row.CreatedAt, &row.Content, &row.Sig, &tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying note: %w", err)
	}
	row.Tags = []byte(tags)
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
