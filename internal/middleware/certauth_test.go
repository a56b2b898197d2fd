package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http"
	"net/http/httptest"
	"testing"
)

// dummyHandler is a placeholder that records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	w.WriteHeader(http.StatusOK)
}

func withPeerCN(req *http.Request, cn string) *http.Request {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: cn}}
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}
	return req
}

func TestCertAuth_RegisterPathBypass(t *testing.T) {
	dummy := &dummyHandler{}
	rec := httptest.NewRecorder()
	CertAuth(dummy).ServeHTTP(rec, httptest.NewRequest("POST", RegisterPath, nil))

	if !dummy.called {
		t.Error("expected next handler to be called for register path")
	}
	if got := GetContextIDFromContext(dummy.ctx); got != "" {
		t.Errorf("expected no context id on register, got %q", got)
	}
}

func TestCertAuth_Rejects(t *testing.T) {
	cases := []struct {
		name string
		req  *http.Request
	}{
		{"no TLS", httptest.NewRequest("POST", "/api/message", nil)},
		{"no peer certificates", func() *http.Request {
			r := httptest.NewRequest("POST", "/api/message", nil)
			r.TLS = &tls.ConnectionState{}
			return r
		}()},
		{"empty common name", withPeerCN(httptest.NewRequest("POST", "/api/message", nil), "")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dummy := &dummyHandler{}
			rec := httptest.NewRecorder()
			CertAuth(dummy).ServeHTTP(rec, tc.req)

			if dummy.called {
				t.Error("did not expect next handler to be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 Unauthorized, got %d", rec.Code)
			}
		})
	}
}

func TestCertAuth_ValidCertificate(t *testing.T) {
	dummy := &dummyHandler{}
	rec := httptest.NewRecorder()
	CertAuth(dummy).ServeHTTP(rec, withPeerCN(httptest.NewRequest("POST", "/api/message", nil), "tab-7"))

	if !dummy.called {
		t.Fatal("expected next handler to be called when valid certificate provided")
	}
	if id := GetContextIDFromContext(dummy.ctx); id != "tab-7" {
		t.Errorf("expected context id 'tab-7', got '%s'", id)
	}
}

func TestGetContextIDFromContext(t *testing.T) {
	if empty := GetContextIDFromContext(context.Background()); empty != "" {
		t.Errorf("expected empty string for missing id, got '%s'", empty)
	}
	if val := GetContextIDFromContext(WithContextID(context.Background(), "popup")); val != "popup" {
		t.Errorf("expected 'popup', got '%s'", val)
	}
}
