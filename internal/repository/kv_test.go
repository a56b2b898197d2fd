package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func setupKVMock(t *testing.T) (*PostgresKV, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	store := NewPostgresKV(db)
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	cleanup := func() { db.Close() }
	return store, mock, cleanup
}

const upsertKV = `
			INSERT INTO kv (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at
		`

func TestPostgresKV_Get(t *testing.T) {
	store, mock, cleanup := setupKVMock(t)
	defer cleanup()

	keys := []string{"pw_master_key_set", "feature_darkMode", "missing"}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM kv WHERE key = ANY($1)`)).
		WithArgs(pq.Array(keys)).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("pw_master_key_set", []byte(`true`)).
			AddRow("feature_darkMode", []byte(`false`)))

	got, err := store.Get(context.Background(), keys...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %d", len(got))
	}
	if string(got["feature_darkMode"]) != "false" {
		t.Errorf("feature_darkMode = %s; want false", got["feature_darkMode"])
	}
	if _, ok := got["missing"]; ok {
		t.Errorf("missing key must be absent from result")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresKV_GetError(t *testing.T) {
	store, mock, cleanup := setupKVMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM kv`)).
		WillReturnError(errors.New("connection reset"))

	if _, err := store.Get(context.Background(), "a"); err == nil {
		t.Errorf("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresKV_Set(t *testing.T) {
	store, mock, cleanup := setupKVMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertKV)).
		WithArgs("pw_master_key_hash", []byte(`"verifier"`), int64(1700000000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(upsertKV)).
		WithArgs("pw_master_key_set", []byte(`true`), int64(1700000000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Set(context.Background(), map[string]any{
		"pw_master_key_set":  true,
		"pw_master_key_hash": "verifier",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresKV_SetRollsBack(t *testing.T) {
	store, mock, cleanup := setupKVMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertKV)).
		WithArgs("a", []byte(`1`), int64(1700000000000)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := store.Set(context.Background(), map[string]any{"a": 1}); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresKV_SetRejectsUnencodable(t *testing.T) {
	store, mock, cleanup := setupKVMock(t)
	defer cleanup()

	if err := store.Set(context.Background(), map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatalf("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no sql expected: %v", err)
	}
}

func TestPostgresKV_Remove(t *testing.T) {
	store, mock, cleanup := setupKVMock(t)
	defer cleanup()

	keys := []string{"github_token"}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kv WHERE key = ANY($1)`)).
		WithArgs(pq.Array(keys)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Remove(context.Background(), keys...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresKV_RawValuesRoundTrip(t *testing.T) {
	store, mock, cleanup := setupKVMock(t)
	defer cleanup()

	blob := json.RawMessage(`{"a.com":{"site":"a.com"}}`)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM kv`)).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).AddRow("pw_store", []byte(blob)))

	got, err := store.Get(context.Background(), "pw_store")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got["pw_store"]) != string(blob) {
		t.Errorf("pw_store = %s; want %s", got["pw_store"], blob)
	}
}
