package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/models"
	"github.com/atinyakov/gnoixus/internal/service"
)

// ContextRegistry defines the registry operations required by the HTTP
// handlers.
type ContextRegistry interface {
	// Exists reports whether the context id is registered.
	Exists(ctx context.Context, id string) (bool, error)
	// Register records peer, assigning an id when it has none.
	Register(ctx context.Context, peer models.Peer) (models.Peer, error)
	// Touch marks id as alive.
	Touch(ctx context.Context, id string) error
}

// CertIssuer signs context certificates.
type CertIssuer interface {
	GenerateContextCertificate(id string) (certPEM, keyPEM []byte, err error)
}

// RegisterHandler hands out client certificates to new execution contexts.
type RegisterHandler struct {
	Contexts ContextRegistry
	Issuer   CertIssuer
	Log      *zap.Logger
	// Reserved ids are never handed out, the host's own id among them.
	Reserved []string
}

// RegisterRequest is the JSON payload of POST /api/register.
type RegisterRequest struct {
	// ID is optional; the host assigns one when empty.
	ID       string `json:"id,omitempty"`
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint,omitempty"`
}

// RegisterResponse carries the new identity and its PEM material.
type RegisterResponse struct {
	ID   string `json:"id"`
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// Register handles context registration. A requested id that is already
// taken or reserved is rejected with 409 Conflict.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if lo.Contains(h.Reserved, req.ID) {
		h.Log.Warn("rejected reserved context id", zap.String("context", req.ID))
		http.Error(w, "context id is reserved", http.StatusConflict)
		return
	}

	if req.ID != "" {
		exists, err := h.Contexts.Exists(r.Context(), req.ID)
		if err != nil {
			h.Log.Error("context lookup failed", zap.String("context", req.ID), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if exists {
			http.Error(w, "context already exists", http.StatusConflict)
			return
		}
	}

	peer, err := h.Contexts.Register(r.Context(), models.Peer{ID: req.ID, Kind: req.Kind, Endpoint: req.Endpoint})
	if errors.Is(err, service.ErrUnknownKind) {
		http.Error(w, "unknown context kind", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.Log.Error("failed to register context", zap.Error(err))
		http.Error(w, "failed to save context", http.StatusInternalServerError)
		return
	}

	certPEM, keyPEM, err := h.Issuer.GenerateContextCertificate(peer.ID)
	if err != nil {
		h.Log.Error("failed to issue certificate", zap.String("context", peer.ID), zap.Error(err))
		http.Error(w, "failed to generate certificate", http.StatusInternalServerError)
		return
	}

	h.Log.Info("context registered", zap.String("context", peer.ID), zap.String("kind", peer.Kind))
	writeJSON(w, RegisterResponse{ID: peer.ID, Cert: string(certPEM), Key: string(keyPEM)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
