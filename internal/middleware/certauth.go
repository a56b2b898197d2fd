// Package middleware provides HTTP middlewares for context authentication
// and request logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const contextIDKey ctxKey = "contextID"

// RegisterPath is served without a client certificate so that a new
// execution context can obtain one.
const RegisterPath = "/api/register"

// CertAuth is a middleware that enforces mutual TLS authentication.
//
// Every request except RegisterPath must present a client certificate. The
// certificate's Common Name is the sender context id and is stored in the
// request context for the handlers.
func CertAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == RegisterPath {
			next.ServeHTTP(w, r)
			return
		}
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "no client certificate provided", http.StatusUnauthorized)
			return
		}
		cn := r.TLS.PeerCertificates[0].Subject.CommonName
		if cn == "" {
			http.Error(w, "certificate has no common name", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContextID(r.Context(), cn)))
	})
}

// WithContextID returns a copy of ctx carrying the sender context id.
func WithContextID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextIDKey, id)
}

// GetContextIDFromContext extracts the sender context id. Returns an empty
// string if not found.
func GetContextIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(contextIDKey).(string); ok {
		return s
	}
	return ""
}
