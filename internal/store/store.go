// Package store provides the persistent cache tier behind the phonetic and
// speech caches. It uses modernc.org/sqlite for pure-Go, CGO-free access.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// KV is the narrow persistence contract the caches depend on. Both tables
// are append-only: a Put for an existing key is a no-op, existing entries
// are never overwritten.
type KV interface {
	GetPhonetic(ctx context.Context, language, text string) (string, bool, error)
	PutPhonetic(ctx context.Context, language, text, phonetic string) error
	GetSpeech(ctx context.Context, language, text string) ([]byte, bool, error)
	PutSpeech(ctx context.Context, language, text string, audio []byte) error
	Close() error
}

// SQLite implements KV on a local SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ KV = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS phonetics (
	language TEXT NOT NULL,
	text     TEXT NOT NULL,
	phonetic TEXT NOT NULL,
	PRIMARY KEY (language, text)
);
CREATE TABLE IF NOT EXISTS speech (
	language TEXT NOT NULL,
	text     TEXT NOT NULL,
	audio    BLOB NOT NULL,
	PRIMARY KEY (language, text)
);
`

// Open opens (creating if necessary) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) GetPhonetic(ctx context.Context, language, text string) (string, bool, error) {
	var phonetic string
	err := s.db.QueryRowContext(ctx,
		"SELECT phonetic FROM phonetics WHERE language = ? AND text = ?",
		language, text).Scan(&phonetic)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return phonetic, true, nil
}

func (s *SQLite) PutPhonetic(ctx context.Context, language, text, phonetic string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO phonetics (language, text, phonetic) VALUES (?, ?, ?)",
		language, text, phonetic)
	return err
}

func (s *SQLite) GetSpeech(ctx context.Context, language, text string) ([]byte, bool, error) {
	var audio []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT audio FROM speech WHERE language = ? AND text = ?",
		language, text).Scan(&audio)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return audio, true, nil
}

func (s *SQLite) PutSpeech(ctx context.Context, language, text string, audio []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO speech (language, text, audio) VALUES (?, ?, ?)",
		language, text, audio)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }
