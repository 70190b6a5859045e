// Package store is the conversion log: one row per processed document,
// keyed by content hash so an unchanged document is recognized and skipped.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// Schema is the conversion log schema, applied on open.
const Schema = `
CREATE TABLE IF NOT EXISTS conversions (
    id            TEXT PRIMARY KEY,
    source_path   TEXT NOT NULL,
    source_name   TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    status        TEXT NOT NULL,
    lesson_type   TEXT NOT NULL DEFAULT '',
    lesson_json   TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    converted_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_hash ON conversions(content_hash, converted_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversions_time ON conversions(converted_at DESC);
`

// Conversion statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrNotFound reports a missing conversion record.
var ErrNotFound = errors.New("conversion not found")

// Conversion is one logged conversion attempt.
type Conversion struct {
	ID           string
	SourcePath   string
	SourceName   string
	ContentHash  string
	Status       string
	LessonType   string
	LessonJSON   string
	ErrorMessage string
	DurationMs   int64
	ConvertedAt  time.Time
}

// Store wraps the conversion log database.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the log at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Insert records one conversion attempt.
func (s *Store) Insert(ctx context.Context, c *Conversion) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO conversions (id, source_path, source_name, content_hash, status,
		lesson_type, lesson_json, error_message, duration_ms, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SourcePath, c.SourceName, c.ContentHash, c.Status,
		c.LessonType, c.LessonJSON, c.ErrorMessage, c.DurationMs,
		c.ConvertedAt.UnixMilli(),
	)
	return err
}

// LatestByHash returns the most recent conversion for a content hash.
func (s *Store) LatestByHash(ctx context.Context, hash string) (*Conversion, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, source_path, source_name, content_hash, status,
		lesson_type, lesson_json, error_message, duration_ms, converted_at
		FROM conversions WHERE content_hash = ?
		ORDER BY converted_at DESC LIMIT 1`, hash)
	return scanConversion(row)
}

// HasSucceeded reports whether a document with this content hash already
// converted successfully, making a re-run redundant.
func (s *Store) HasSucceeded(ctx context.Context, hash string) (bool, error) {
	c, err := s.LatestByHash(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.Status == StatusOK, nil
}

// History returns conversions, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]*Conversion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_path, source_name, content_hash, status,
		lesson_type, lesson_json, error_message, duration_ms, converted_at
		FROM conversions ORDER BY converted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Conversion
	for rows.Next() {
		var c Conversion
		var at int64
		if err := rows.Scan(&c.ID, &c.SourcePath, &c.SourceName, &c.ContentHash,
			&c.Status, &c.LessonType, &c.LessonJSON, &c.ErrorMessage,
			&c.DurationMs, &at); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		c.ConvertedAt = time.UnixMilli(at)
		result = append(result, &c)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversion(row rowScanner) (*Conversion, error) {
	var c Conversion
	var at int64
	err := row.Scan(&c.ID, &c.SourcePath, &c.SourceName, &c.ContentHash,
		&c.Status, &c.LessonType, &c.LessonJSON, &c.ErrorMessage,
		&c.DurationMs, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ConvertedAt = time.UnixMilli(at)
	return &c, nil
}

// HashFile returns the hex sha256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
