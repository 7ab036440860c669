// Package storage persists completed translations in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/imgtranslate/api/internal/model"
)

// DefaultListLimit is used when List receives a non-positive limit.
const DefaultListLimit = 50

var ErrNotFound = errors.New("translation not found")

const selectColumns = `id, original_image, translated_image, original_filename, file_size, created_at`

// HistoryStore is the ordered log of completed translations.
// It holds a single connection so writes are serialized and ids are
// assigned in commit order.
type HistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*HistoryStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// SQLite does not support concurrent writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &HistoryStore{db: db, now: time.Now}, nil
}

// Close releases the underlying connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert stores a new record and returns it as committed.
func (s *HistoryStore) Insert(ctx context.Context, original, translated []byte, filename string, size int64) (*model.TranslationRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO translation_history (original_image, translated_image, original_filename, file_size, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		original, translated, filename, size, s.now().UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert translation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read translation id: %w", err)
	}

	record, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM translation_history WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted translation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit translation: %w", err)
	}

	return record, nil
}

// GetByID returns the record or ErrNotFound.
func (s *HistoryStore) GetByID(ctx context.Context, id int64) (*model.TranslationRecord, error) {
	record, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM translation_history WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get translation %d: %w", id, err)
	}
	return record, nil
}

// List returns records newest first. Ties on created_at are broken by id.
func (s *HistoryStore) List(ctx context.Context, limit, offset int) ([]model.TranslationRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM translation_history
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}
	defer rows.Close()

	records := make([]model.TranslationRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (s *HistoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translation_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count translations: %w", err)
	}
	return n, nil
}

// DeleteByID removes one record. It returns false when no such id exists.
func (s *HistoryStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete translation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete translation %d: %w", id, err)
	}
	return n > 0, nil
}

// DeleteAll removes every record and returns how many were removed.
func (s *HistoryStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_history`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear translations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to clear translations: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.TranslationRecord, error) {
	var (
		r         model.TranslationRecord
		createdAt int64
	)
	if err := row.Scan(&r.ID, &r.OriginalImage, &r.TranslatedImage, &r.OriginalFilename, &r.FileSize, &createdAt); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	return &r, nil
}
