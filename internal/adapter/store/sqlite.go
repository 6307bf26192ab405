// Package store implements domain.PresentationStore over the presentation
// HTTP API and over a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"deckstream/internal/domain"
)

// SQLiteStore keeps presentations in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open presentation db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate presentation db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS presentations (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Fetch implements domain.PresentationStore.
func (s *SQLiteStore) Fetch(ctx context.Context, id string) (*domain.Presentation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title, data, updated_at FROM presentations WHERE id = ?", id)
	p, err := scanPresentation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewSubSystemError("store", "SQLiteStore.Fetch", domain.ErrPresentationMissing, id)
	}
	if err != nil {
		return nil, domain.NewSubSystemError("store", "SQLiteStore.Fetch", domain.ErrStoreUnavailable, err.Error())
	}
	return p, nil
}

// Update implements domain.PresentationStore. Unknown ids are inserted.
func (s *SQLiteStore) Update(ctx context.Context, p *domain.Presentation) error {
	if p.ID == "" {
		return domain.NewSubSystemError("store", "SQLiteStore.Update", domain.ErrInvalidInput, "empty id")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	data := string(p.Data)
	if data == "" {
		data = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presentations (id, title, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, data = excluded.data, updated_at = excluded.updated_at`,
		p.ID, p.Title, data, p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewSubSystemError("store", "SQLiteStore.Update", domain.ErrStoreUnavailable, err.Error())
	}
	return nil
}

// List returns every stored presentation, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]*domain.Presentation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, data, updated_at FROM presentations ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list presentations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Presentation
	for rows.Next() {
		p, err := scanPresentation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPresentation(row scanner) (*domain.Presentation, error) {
	var (
		p       domain.Presentation
		data    string
		updated string
	)
	if err := row.Scan(&p.ID, &p.Title, &data, &updated); err != nil {
		return nil, err
	}
	p.Data = []byte(data)
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	p.UpdatedAt = t
	return &p, nil
}

var _ domain.PresentationStore = (*SQLiteStore)(nil)
