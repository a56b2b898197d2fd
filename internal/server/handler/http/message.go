package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/middleware"
	"github.com/atinyakov/gnoixus/internal/models"
)

// Dispatcher routes an envelope to its feature and returns the response body.
type Dispatcher interface {
	Dispatch(ctx context.Context, sender string, env models.Envelope) any
}

// FeatureStates lists the enabled flag of every feature.
type FeatureStates interface {
	States(ctx context.Context) (map[string]bool, error)
}

// MessageHandler carries cross-context messages into the dispatcher.
type MessageHandler struct {
	Dispatcher Dispatcher
	Features   FeatureStates
	Contexts   ContextRegistry
	Log        *zap.Logger
}

// Message handles POST /api/message. The body is one envelope; the reply is
// whatever the dispatcher produced, always with status 200 once the sender
// is known.
func (h *MessageHandler) Message(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sender, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var env models.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.Dispatcher.Dispatch(ctx, sender, env))
}

// ListFeatures handles GET /api/features.
func (h *MessageHandler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r); !ok {
		return
	}
	states, err := h.Features.States(r.Context())
	if err != nil {
		h.Log.Error("failed to load feature states", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, models.FeatureStatesResponse{Status: models.OK(), States: states})
}

// authorize resolves the sender from the request and records its activity.
func (h *MessageHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	sender := middleware.GetContextIDFromContext(r.Context())
	exists, err := h.Contexts.Exists(r.Context(), sender)
	if err != nil {
		h.Log.Error("context lookup failed", zap.String("context", sender), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return "", false
	}
	if !exists {
		http.Error(w, "context not registered", http.StatusForbidden)
		return "", false
	}
	if err := h.Contexts.Touch(r.Context(), sender); err != nil {
		h.Log.Warn("failed to touch context", zap.String("context", sender), zap.Error(err))
	}
	return sender, true
}
