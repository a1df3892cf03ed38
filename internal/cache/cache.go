// Package cache persists the last successful fetch per group so the client
// can show stale-but-available data before the first poll completes.
package cache

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNoSnapshot is returned by Load when nothing has been cached yet.
var ErrNoSnapshot = errors.New("cache: no snapshot")

// Kind distinguishes the two snapshot payloads the backend serves.
type Kind string

const (
	KindList         Kind = "list"
	KindTransactions Kind = "transactions"
)

// Cache is a SQLite-backed snapshot store. Each (group, kind) pair holds at
// most one payload; every save wholesale-replaces the previous one, matching
// the no-merge fetch policy.
type Cache struct {
	db *sql.DB
}

// Open opens the cache database at the given path and runs migrations.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Save replaces the cached payload for (groupID, kind).
func (c *Cache) Save(groupID string, kind Kind, payload any, fetchedAt time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO snapshots (group_id, kind, payload, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (group_id, kind)
		DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		groupID, string(kind), string(data), fetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load decodes the cached payload for (groupID, kind) into out and returns
// when it was fetched.
func (c *Cache) Load(groupID string, kind Kind, out any) (time.Time, error) {
	var payload string
	var fetchedAt time.Time
	err := c.db.QueryRow(`
		SELECT payload, fetched_at FROM snapshots WHERE group_id = ? AND kind = ?`,
		groupID, string(kind)).Scan(&payload, &fetchedAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return fetchedAt, nil
}

// Clear removes all cached snapshots, used on logout.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
