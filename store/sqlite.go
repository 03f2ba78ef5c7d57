package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sources (
	name TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	payload BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

const (
	defaultStoreDir = ".toolbridge"
	defaultStoreDB  = "toolbridge.db"
)

// SQLiteConfig configures the SQLite-backed source store.
type SQLiteConfig struct {
	DSN string
	// Scope controls secret key derivation; defaults to DSN.
	Scope string
}

// SQLiteStore persists sources in SQLite. Header and env values are
// encrypted at rest.
type SQLiteStore struct {
	db    *sql.DB
	scope string
}

// DefaultSQLitePath returns ~/.toolbridge/toolbridge.db.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultStoreDB), nil
}

// NewSQLiteStore opens (or creates) a store. The parent directory of a file
// DSN is created when missing.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("store: sqlite dsn is required")
	}
	if !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("store: create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite create schema: %w", err)
	}

	scope := cfg.Scope
	if strings.TrimSpace(scope) == "" {
		scope = cfg.DSN
	}
	return &SQLiteStore{db: db, scope: scope}, nil
}

// List returns all sources ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("store: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM sources
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite list sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: sqlite scan source: %w", err)
		}
		src, err := s.decode(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: sqlite source rows: %w", err)
	}
	return out, nil
}

// Get returns a source by name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (Source, bool, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, false, err
	}
	if s == nil || s.db == nil {
		return Source{}, false, errors.New("store: sqlite store is nil")
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sources WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, false, nil
	}
	if err != nil {
		return Source{}, false, fmt.Errorf("store: sqlite get source: %w", err)
	}
	src, err := s.decode(payload)
	if err != nil {
		return Source{}, false, err
	}
	return src, true, nil
}

// Upsert validates and stores a source. RegisteredAt is kept from an
// earlier registration of the same name.
func (s *SQLiteStore) Upsert(ctx context.Context, src Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("store: sqlite store is nil")
	}
	src.Name = strings.TrimSpace(src.Name)
	if err := src.Validate(); err != nil {
		return err
	}

	existing, found, err := s.Get(ctx, src.Name)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if src.RegisteredAt.IsZero() {
		if found && !existing.RegisteredAt.IsZero() {
			src.RegisteredAt = existing.RegisteredAt
		} else {
			src.RegisteredAt = now
		}
	}

	payload, err := s.encode(src)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sources (name, type, payload, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	type = excluded.type,
	payload = excluded.payload,
	updated_at = excluded.updated_at`,
		src.Name,
		string(src.Type),
		payload,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: sqlite upsert source: %w", err)
	}
	return nil
}

// Delete removes a source. Deleting a missing name is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("store: sqlite store is nil")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE name = ?`, name); err != nil {
		return fmt.Errorf("store: sqlite delete source: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) encode(src Source) ([]byte, error) {
	clone := cloneSource(src)
	codec, err := newSecretCodec(s.scope)
	if err != nil {
		return nil, fmt.Errorf("store: initialize secret codec: %w", err)
	}
	if err := codec.sealMap(clone.Headers, false); err != nil {
		return nil, fmt.Errorf("store: encrypt header for %s: %w", src.Name, err)
	}
	if err := codec.sealMap(clone.Env, false); err != nil {
		return nil, fmt.Errorf("store: encrypt env for %s: %w", src.Name, err)
	}
	data, err := json.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("store: sqlite encode source: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) decode(payload []byte) (Source, error) {
	var src Source
	if err := json.Unmarshal(payload, &src); err != nil {
		return Source{}, fmt.Errorf("store: sqlite decode source: %w", err)
	}
	codec, err := newSecretCodec(s.scope)
	if err != nil {
		return Source{}, fmt.Errorf("store: initialize secret codec: %w", err)
	}
	if err := codec.sealMap(src.Headers, true); err != nil {
		return Source{}, fmt.Errorf("store: decrypt header for %s: %w", src.Name, err)
	}
	if err := codec.sealMap(src.Env, true); err != nil {
		return Source{}, fmt.Errorf("store: decrypt env for %s: %w", src.Name, err)
	}
	return src, nil
}

var _ Store = (*SQLiteStore)(nil)
