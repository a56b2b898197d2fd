// Package repository provides PostgreSQL persistence for the key-value
// namespace and the execution context registry.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/atinyakov/gnoixus/internal/kv"
)

// PostgresKV implements kv.Store on the kv table.
type PostgresKV struct {
	// DB is the database handle for executing queries and transactions.
	DB  *sql.DB
	now func() time.Time
}

// NewPostgresKV creates a PostgresKV using the provided *sql.DB.
// db must be a valid connection to a PostgreSQL instance with the schema applied.
func NewPostgresKV(db *sql.DB) *PostgresKV {
	return &PostgresKV{DB: db, now: time.Now}
}

// Get fetches the values stored under keys. Keys that do not exist are
// omitted from the result.
func (s *PostgresKV) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT key, value FROM kv WHERE key = ANY($1)
	`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	defer rows.Close()

	values := make(map[string]json.RawMessage, len(keys))
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kv get: %w", err)
	}
	return values, nil
}

// Set upserts every entry of values within one transaction.
func (s *PostgresKV) Set(ctx context.Context, values map[string]any) error {
	encoded, err := kv.Encode(values)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(encoded))
	for k := range encoded {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	updatedAt := s.now().UnixMilli()
	for _, k := range keys {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at
		`, k, []byte(encoded[k]), updatedAt)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Remove deletes keys.
func (s *PostgresKV) Remove(ctx context.Context, keys ...string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("kv remove: %w", err)
	}
	return nil
}
