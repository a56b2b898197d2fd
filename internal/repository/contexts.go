package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/atinyakov/gnoixus/internal/models"
)

// PostgresContextRepository stores registered execution contexts in the
// contexts table.
type PostgresContextRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresContextRepository creates a new PostgresContextRepository with the given database connection.
func NewPostgresContextRepository(db *sql.DB) *PostgresContextRepository {
	return &PostgresContextRepository{DB: db}
}

// ContextExists checks whether a context with the given id is registered.
func (s *PostgresContextRepository) ContextExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM contexts WHERE id = $1)`,
		id,
	).Scan(&exists)
	return exists, err
}

// RegisterContext inserts peer, or refreshes its kind, endpoint and
// last_seen if the id is already known.
func (s *PostgresContextRepository) RegisterContext(ctx context.Context, peer models.Peer) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO contexts (id, kind, endpoint, last_seen) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET kind = EXCLUDED.kind, endpoint = EXCLUDED.endpoint, last_seen = EXCLUDED.last_seen`,
		peer.ID, peer.Kind, peer.Endpoint, peer.LastSeen,
	)
	return err
}

// TouchContext records activity of the context id at seen (Unix seconds).
func (s *PostgresContextRepository) TouchContext(ctx context.Context, id string, seen int64) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE contexts SET last_seen = $2 WHERE id = $1`, id, seen)
	return err
}

// LiveContexts returns every context seen at or after since, ordered by id.
func (s *PostgresContextRepository) LiveContexts(ctx context.Context, since int64) ([]models.Peer, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, kind, endpoint, last_seen FROM contexts WHERE last_seen >= $1 ORDER BY id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("LiveContexts: %w", err)
	}
	defer rows.Close()

	var peers []models.Peer
	for rows.Next() {
		var p models.Peer
		if err := rows.Scan(&p.ID, &p.Kind, &p.Endpoint, &p.LastSeen); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// DeleteStale removes contexts last seen before cutoff (Unix seconds) and
// reports how many were removed.
func (s *PostgresContextRepository) DeleteStale(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM contexts WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MemoryContextRepository keeps the registry in process memory. It backs
// hosts started without a database.
type MemoryContextRepository struct {
	mu    sync.RWMutex
	peers map[string]models.Peer
}

func NewMemoryContextRepository() *MemoryContextRepository {
	return &MemoryContextRepository{peers: make(map[string]models.Peer)}
}

func (m *MemoryContextRepository) ContextExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.peers[id]
	return ok, nil
}

func (m *MemoryContextRepository) RegisterContext(_ context.Context, peer models.Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peer.ID] = peer
	return nil
}

func (m *MemoryContextRepository) TouchContext(_ context.Context, id string, seen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		p.LastSeen = seen
		m.peers[id] = p
	}
	return nil
}

func (m *MemoryContextRepository) LiveContexts(_ context.Context, since int64) ([]models.Peer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var peers []models.Peer
	for _, p := range m.peers {
		if p.LastSeen >= since {
			peers = append(peers, p)
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers, nil
}

func (m *MemoryContextRepository) DeleteStale(_ context.Context, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, p := range m.peers {
		if p.LastSeen < cutoff {
			delete(m.peers, id)
			removed++
		}
	}
	return removed, nil
}
