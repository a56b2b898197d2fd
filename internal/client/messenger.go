package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/atinyakov/gnoixus/internal/models"
)

// Paths served by the host.
const (
	MessagePath  = "/api/message"
	FeaturesPath = "/api/features"
)

// RequestIDHeader correlates a message with the host's request log.
const RequestIDHeader = "X-Request-Id"

// Messenger sends envelopes to the host and returns the raw replies.
type Messenger struct {
	Client  *http.Client
	BaseURL string
}

// Send posts env and returns the reply body.
func (m *Messenger) Send(ctx context.Context, env models.Envelope) (json.RawMessage, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url(MessagePath), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return m.do(req)
}

// Features fetches the enabled flag of every feature.
func (m *Messenger) Features(ctx context.Context) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url(FeaturesPath), nil)
	if err != nil {
		return nil, err
	}
	body, err := m.do(req)
	if err != nil {
		return nil, err
	}
	var resp models.FeatureStatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	return resp.States, nil
}

func (m *Messenger) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (m *Messenger) url(path string) string {
	return strings.TrimSuffix(m.BaseURL, "/") + path
}
