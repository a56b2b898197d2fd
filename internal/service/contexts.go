// Package service provides the execution context registry, delegating
// persistence to a ContextRepository.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atinyakov/gnoixus/internal/models"
)

// ErrUnknownKind is returned when a context registers with an unsupported kind.
var ErrUnknownKind = errors.New("unknown context kind")

// ContextRepository defines the persistence operations required by the
// registry.
type ContextRepository interface {
	// ContextExists returns true if a context with the given id is registered.
	ContextExists(ctx context.Context, id string) (bool, error)
	// RegisterContext creates or refreshes the record of peer.
	RegisterContext(ctx context.Context, peer models.Peer) error
	// TouchContext updates the last seen time of id.
	TouchContext(ctx context.Context, id string, seen int64) error
	// LiveContexts lists contexts seen at or after since.
	LiveContexts(ctx context.Context, since int64) ([]models.Peer, error)
}

// ContextService tracks which execution contexts are alive.
type ContextService struct {
	repo      ContextRepository
	retention time.Duration
	now       func() time.Time
}

// NewContextService constructs a ContextService. Contexts not seen within
// retention are excluded from Live; zero disables the cut-off.
func NewContextService(repo ContextRepository, retention time.Duration) *ContextService {
	return &ContextService{repo: repo, retention: retention, now: time.Now}
}

// Register records peer and returns it as stored. A missing id is replaced
// by a fresh UUID and a missing kind defaults to content.
func (s *ContextService) Register(ctx context.Context, peer models.Peer) (models.Peer, error) {
	switch peer.Kind {
	case "":
		peer.Kind = models.KindContent
	case models.KindContent, models.KindPopup, models.KindBackground:
	default:
		return models.Peer{}, ErrUnknownKind
	}
	if peer.ID == "" {
		peer.ID = uuid.NewString()
	}
	peer.LastSeen = s.now().Unix()

	if err := s.repo.RegisterContext(ctx, peer); err != nil {
		return models.Peer{}, err
	}
	return peer, nil
}

// Exists checks whether id is registered.
func (s *ContextService) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.ContextExists(ctx, id)
}

// Touch marks id as seen now.
func (s *ContextService) Touch(ctx context.Context, id string) error {
	return s.repo.TouchContext(ctx, id, s.now().Unix())
}

// Live returns the contexts seen within the retention window.
func (s *ContextService) Live(ctx context.Context) ([]models.Peer, error) {
	var since int64
	if s.retention > 0 {
		since = s.now().Add(-s.retention).Unix()
	}
	return s.repo.LiveContexts(ctx, since)
}
