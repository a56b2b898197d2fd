package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atinyakov/gnoixus/internal/models"
)

// MessagePath is where a host accepts envelopes.
const MessagePath = "/api/message"

// ErrNoEndpoint is returned for a peer that registered without an endpoint.
var ErrNoEndpoint = errors.New("peer has no endpoint")

// HTTPTransport POSTs envelopes to the endpoint a peer registered with. The
// client should carry the host's TLS client certificate.
type HTTPTransport struct {
	Client *http.Client
}

func (t HTTPTransport) Send(ctx context.Context, peer models.Peer, env models.Envelope) error {
	if peer.Endpoint == "" {
		return ErrNoEndpoint
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	url := strings.TrimRight(peer.Endpoint, "/") + MessagePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return checkReply(data)
}
