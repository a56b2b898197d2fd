// Package http exposes the feature host to execution contexts over mTLS.
package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/atinyakov/gnoixus/internal/middleware"
)

// NewRouter constructs the HTTP API of the feature host.
//
// Routes:
//
//	POST /api/register   → register.Register (no client certificate)
//	POST /api/message    → message.Message
//	GET  /api/features   → message.ListFeatures
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json")
//  2. RequestID, honouring the client's X-Request-Id
//  3. CertAuth
//  4. WithRequestLogging(logger)
func NewRouter(
	register *RegisterHandler,
	message *MessageHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json"))
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CertAuth)
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", register.Register)

		r.Group(func(r chi.Router) {
			r.Post("/message", message.Message)
			r.Get("/features", message.ListFeatures)
		})
	})

	return r
}
