// Package sqlitecache keeps the advice cache in a local SQLite file, for
// single-instance deployments without Redis.
package sqlitecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"lg/nutrition-advice-api/internal/advice"
)

type Cache struct {
	db *sql.DB
}

var _ advice.CacheStore = (*Cache)(nil)

func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Concurrent writers on one file would fail with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS advice_cache (
        user_id INTEGER PRIMARY KEY,
        profile_hash TEXT NOT NULL,
        result TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    `
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, userID int) (*advice.CacheEntry, error) {
	var (
		hash, raw string
		createdAt time.Time
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT profile_hash, result, created_at FROM advice_cache WHERE user_id = ?`, userID,
	).Scan(&hash, &raw, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache: %w", err)
	}
	e := &advice.CacheEntry{UserID: userID, ProfileHash: hash, CreatedAt: createdAt}
	if err := json.Unmarshal([]byte(raw), &e.Result); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}
	return e, nil
}

func (c *Cache) Put(ctx context.Context, e advice.CacheEntry) error {
	raw, err := json.Marshal(e.Result)
	if err != nil {
		return err
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = c.db.ExecContext(ctx, `
        INSERT INTO advice_cache (user_id, profile_hash, result, created_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            profile_hash = excluded.profile_hash,
            result = excluded.result,
            created_at = excluded.created_at`,
		e.UserID, e.ProfileHash, string(raw), created.UTC())
	if err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, userID int) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM advice_cache WHERE user_id = ?`, userID)
	return err
}
