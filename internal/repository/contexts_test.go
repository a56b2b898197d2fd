package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/atinyakov/gnoixus/internal/models"
)

func setupContextMock(t *testing.T) (*PostgresContextRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresContextRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

func TestContextExists(t *testing.T) {
	cases := []struct {
		name   string
		exists bool
		err    error
	}{
		{"registered", true, nil},
		{"unknown", false, nil},
		{"query error", false, errors.New("query failed")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, mock, cleanup := setupContextMock(t)
			defer cleanup()

			q := mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM contexts WHERE id = $1)`)).
				WithArgs("tab-1")
			if tc.err != nil {
				q.WillReturnError(tc.err)
			} else {
				q.WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tc.exists))
			}

			got, err := repo.ContextExists(context.Background(), "tab-1")
			if (err != nil) != (tc.err != nil) {
				t.Fatalf("ContextExists error = %v; want %v", err, tc.err)
			}
			if got != tc.exists {
				t.Errorf("ContextExists = %v; want %v", got, tc.exists)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestRegisterContext(t *testing.T) {
	repo, mock, cleanup := setupContextMock(t)
	defer cleanup()

	peer := models.Peer{ID: "tab-1", Kind: models.KindContent, Endpoint: "https://localhost:9001", LastSeen: 100}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO contexts (id, kind, endpoint, last_seen) VALUES ($1, $2, $3, $4)`)).
		WithArgs(peer.ID, peer.Kind, peer.Endpoint, peer.LastSeen).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.RegisterContext(context.Background(), peer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTouchContext(t *testing.T) {
	repo, mock, cleanup := setupContextMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE contexts SET last_seen = $2 WHERE id = $1`)).
		WithArgs("tab-1", int64(200)).
		WillReturnError(errors.New("exec failed"))

	if err := repo.TouchContext(context.Background(), "tab-1", 200); err == nil {
		t.Errorf("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLiveContexts(t *testing.T) {
	repo, mock, cleanup := setupContextMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, kind, endpoint, last_seen FROM contexts WHERE last_seen >= $1 ORDER BY id`)).
		WithArgs(int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "endpoint", "last_seen"}).
			AddRow("popup", "popup", "", int64(60)).
			AddRow("tab-1", "content", "https://localhost:9001", int64(70)))

	peers, err := repo.LiveContexts(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	if peers[1].Endpoint != "https://localhost:9001" || peers[1].Kind != models.KindContent {
		t.Errorf("unexpected peer: %+v", peers[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLiveContexts_ScanError(t *testing.T) {
	repo, mock, cleanup := setupContextMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, kind, endpoint, last_seen FROM contexts`)).
		WithArgs(int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "endpoint", "last_seen"}).
			AddRow("tab-1", "content", "", "not-a-number"))

	if _, err := repo.LiveContexts(context.Background(), 0); err == nil {
		t.Errorf("expected scan error, got nil")
	}
}

func TestDeleteStale(t *testing.T) {
	repo, mock, cleanup := setupContextMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM contexts WHERE last_seen < $1`)).
		WithArgs(int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := repo.DeleteStale(context.Background(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed = %d; want 4", removed)
	}
}

func TestMemoryContextRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryContextRepository()

	_ = repo.RegisterContext(ctx, models.Peer{ID: "b", Kind: models.KindContent, LastSeen: 10})
	_ = repo.RegisterContext(ctx, models.Peer{ID: "a", Kind: models.KindPopup, LastSeen: 20})
	_ = repo.RegisterContext(ctx, models.Peer{ID: "c", Kind: models.KindContent, LastSeen: 5})

	if ok, _ := repo.ContextExists(ctx, "a"); !ok {
		t.Errorf("expected a to exist")
	}
	_ = repo.TouchContext(ctx, "c", 30)
	_ = repo.TouchContext(ctx, "ghost", 30)
	if ok, _ := repo.ContextExists(ctx, "ghost"); ok {
		t.Errorf("touch must not register")
	}

	live, _ := repo.LiveContexts(ctx, 10)
	if len(live) != 3 || live[0].ID != "a" || live[2].ID != "c" {
		t.Fatalf("unexpected live contexts: %+v", live)
	}

	removed, _ := repo.DeleteStale(ctx, 15)
	if removed != 1 {
		t.Errorf("removed = %d; want 1", removed)
	}
	live, _ = repo.LiveContexts(ctx, 0)
	if len(live) != 2 {
		t.Errorf("expected 2 contexts after cleanup, got %d", len(live))
	}
}
