package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/models"
	"github.com/atinyakov/gnoixus/internal/service"
)

// fakeRegistry implements ContextRegistry for testing.
type fakeRegistry struct {
	known       map[string]bool
	existsErr   error
	registerErr error
	touched     []string
	saved       []models.Peer
}

func (f *fakeRegistry) Exists(ctx context.Context, id string) (bool, error) {
	return f.known[id], f.existsErr
}

func (f *fakeRegistry) Register(ctx context.Context, peer models.Peer) (models.Peer, error) {
	if f.registerErr != nil {
		return models.Peer{}, f.registerErr
	}
	if peer.ID == "" {
		peer.ID = "generated"
	}
	f.saved = append(f.saved, peer)
	return peer, nil
}

func (f *fakeRegistry) Touch(ctx context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeIssuer struct {
	err error
	cn  string
}

func (f *fakeIssuer) GenerateContextCertificate(id string) ([]byte, []byte, error) {
	f.cn = id
	if f.err != nil {
		return nil, nil, f.err
	}
	return []byte("CERT " + id), []byte("KEY " + id), nil
}

type dispatchFunc func(ctx context.Context, sender string, env models.Envelope) any

func (f dispatchFunc) Dispatch(ctx context.Context, sender string, env models.Envelope) any {
	return f(ctx, sender, env)
}

type statesFunc func(ctx context.Context) (map[string]bool, error)

func (f statesFunc) States(ctx context.Context) (map[string]bool, error) { return f(ctx) }

func withCN(req *http.Request, cn string) *http.Request {
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{{Subject: pkix.Name{CommonName: cn}}}}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		registry       *fakeRegistry
		issuer         *fakeIssuer
		expectedCode   int
		expectedSubstr string
	}{
		{
			name:           "invalid JSON",
			body:           `not a json`,
			registry:       &fakeRegistry{},
			issuer:         &fakeIssuer{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "invalid request",
		},
		{
			name:           "lookup error",
			body:           `{"id":"tab-1"}`,
			registry:       &fakeRegistry{existsErr: errors.New("db error")},
			issuer:         &fakeIssuer{},
			expectedCode:   http.StatusInternalServerError,
			expectedSubstr: "internal error",
		},
		{
			name:           "id taken",
			body:           `{"id":"tab-1"}`,
			registry:       &fakeRegistry{known: map[string]bool{"tab-1": true}},
			issuer:         &fakeIssuer{},
			expectedCode:   http.StatusConflict,
			expectedSubstr: "context already exists",
		},
		{
			name:           "unknown kind",
			body:           `{"kind":"sidebar"}`,
			registry:       &fakeRegistry{registerErr: service.ErrUnknownKind},
			issuer:         &fakeIssuer{},
			expectedCode:   http.StatusBadRequest,
			expectedSubstr: "unknown context kind",
		},
		{
			name:           "save failure",
			body:           `{"kind":"content"}`,
			registry:       &fakeRegistry{registerErr: errors.New("db error")},
			issuer:         &fakeIssuer{},
			expectedCode:   http.StatusInternalServerError,
			expectedSubstr: "failed to save context",
		},
		{
			name:           "certificate failure",
			body:           `{"kind":"content"}`,
			registry:       &fakeRegistry{},
			issuer:         &fakeIssuer{err: errors.New("no CA")},
			expectedCode:   http.StatusInternalServerError,
			expectedSubstr: "failed to generate certificate",
		},
		{
			name:           "assigned id",
			body:           `{"kind":"content","endpoint":"https://localhost:9001"}`,
			registry:       &fakeRegistry{},
			issuer:         &fakeIssuer{},
			expectedCode:   http.StatusOK,
			expectedSubstr: `"id":"generated"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/register", bytes.NewBufferString(tt.body))
			h := &RegisterHandler{Contexts: tt.registry, Issuer: tt.issuer, Log: zap.NewNop()}
			h.Register(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

func TestRegisterHandler_IssuesForRequestedID(t *testing.T) {
	issuer := &fakeIssuer{}
	h := &RegisterHandler{Contexts: &fakeRegistry{}, Issuer: issuer, Log: zap.NewNop()}
	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest("POST", "/api/register", bytes.NewBufferString(`{"id":"popup","kind":"popup"}`)))

	var resp RegisterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if issuer.cn != "popup" || resp.ID != "popup" {
		t.Errorf("issued for %q, response id %q; want popup", issuer.cn, resp.ID)
	}
	if resp.Cert != "CERT popup" || resp.Key != "KEY popup" {
		t.Errorf("unexpected PEM material: %+v", resp)
	}
}

func TestRegisterHandler_ReservedID(t *testing.T) {
	registry := &fakeRegistry{}
	issuer := &fakeIssuer{}
	h := &RegisterHandler{Contexts: registry, Issuer: issuer, Log: zap.NewNop(), Reserved: []string{"host"}}

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest("POST", "/api/register",
		bytes.NewBufferString(`{"id":"host","kind":"content","endpoint":"https://attacker.example"}`)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "context id is reserved") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if issuer.cn != "" {
		t.Errorf("certificate issued for reserved id %q", issuer.cn)
	}
	if len(registry.saved) != 0 {
		t.Errorf("reserved id was registered: %+v", registry.saved)
	}
}

func TestMessageHandler(t *testing.T) {
	registry := &fakeRegistry{known: map[string]bool{"tab-1": true}}
	var gotSender string
	h := &MessageHandler{
		Contexts: registry,
		Log:      zap.NewNop(),
		Dispatcher: dispatchFunc(func(ctx context.Context, sender string, env models.Envelope) any {
			gotSender = sender
			if env.Feature != "passwordManager" || env.Type != "list" {
				t.Errorf("unexpected envelope: %+v", env)
			}
			return models.ListResponse{Status: models.OK(), Entries: []models.CredentialSummary{}}
		}),
	}

	rec := httptest.NewRecorder()
	req := withCN(httptest.NewRequest("POST", "/api/message", strings.NewReader(`{"feature":"passwordManager","type":"list"}`)), "tab-1")
	NewRouter(&RegisterHandler{}, h, zap.NewNop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotSender != "tab-1" {
		t.Errorf("sender = %q; want tab-1", gotSender)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"success":true,"entries":[]}` {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(registry.touched) != 1 || registry.touched[0] != "tab-1" {
		t.Errorf("touched = %v; want [tab-1]", registry.touched)
	}
}

func TestMessageHandler_Rejects(t *testing.T) {
	tests := []struct {
		name         string
		cn           string
		body         string
		registry     *fakeRegistry
		expectedCode int
	}{
		{"unregistered", "ghost", `{"type":"getFeatureStates"}`, &fakeRegistry{}, http.StatusForbidden},
		{"lookup error", "tab-1", `{"type":"getFeatureStates"}`, &fakeRegistry{existsErr: errors.New("db")}, http.StatusInternalServerError},
		{"bad body", "tab-1", `{`, &fakeRegistry{known: map[string]bool{"tab-1": true}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &MessageHandler{
				Contexts: tt.registry,
				Log:      zap.NewNop(),
				Dispatcher: dispatchFunc(func(context.Context, string, models.Envelope) any {
					t.Error("dispatcher must not be called")
					return nil
				}),
			}
			rec := httptest.NewRecorder()
			NewRouter(&RegisterHandler{}, h, zap.NewNop()).ServeHTTP(rec,
				withCN(httptest.NewRequest("POST", "/api/message", strings.NewReader(tt.body)), tt.cn))
			if rec.Code != tt.expectedCode {
				t.Errorf("expected status %d, got %d", tt.expectedCode, rec.Code)
			}
		})
	}
}

func TestRouter_RequiresCertificate(t *testing.T) {
	h := &MessageHandler{Contexts: &fakeRegistry{}, Log: zap.NewNop()}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/message", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	NewRouter(&RegisterHandler{}, h, zap.NewNop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRouter_RejectsNonJSON(t *testing.T) {
	h := &MessageHandler{Contexts: &fakeRegistry{known: map[string]bool{"tab-1": true}}, Log: zap.NewNop()}
	rec := httptest.NewRecorder()
	req := withCN(httptest.NewRequest("POST", "/api/message", strings.NewReader(`hello`)), "tab-1")
	req.Header.Set("Content-Type", "text/plain")
	NewRouter(&RegisterHandler{}, h, zap.NewNop()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", rec.Code)
	}
}

func TestFeatures(t *testing.T) {
	cases := []struct {
		name         string
		states       statesFunc
		expectedCode int
		expectedBody string
	}{
		{
			name: "ok",
			states: func(context.Context) (map[string]bool, error) {
				return map[string]bool{"darkMode": false, "passwordManager": true}, nil
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"success":true,"states":{"darkMode":false,"passwordManager":true}}`,
		},
		{
			name:         "store failure",
			states:       func(context.Context) (map[string]bool, error) { return nil, errors.New("io") },
			expectedCode: http.StatusInternalServerError,
			expectedBody: "internal error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &MessageHandler{
				Contexts: &fakeRegistry{known: map[string]bool{"popup": true}},
				Features: tc.states,
				Log:      zap.NewNop(),
			}
			rec := httptest.NewRecorder()
			NewRouter(&RegisterHandler{}, h, zap.NewNop()).ServeHTTP(rec, withCN(httptest.NewRequest("GET", "/api/features", nil), "popup"))

			if rec.Code != tc.expectedCode {
				t.Fatalf("expected status %d, got %d", tc.expectedCode, rec.Code)
			}
			if strings.TrimSpace(rec.Body.String()) != tc.expectedBody {
				t.Errorf("body = %q; want %q", rec.Body.String(), tc.expectedBody)
			}
		})
	}
}
