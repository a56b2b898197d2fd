// Package client talks to the feature host from a command-line execution
// context: registration, mTLS transport and message exchange.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Identity file names written by Register.
const (
	CertFile = "client.crt"
	KeyFile  = "client.key"
	IDFile   = "client.id"
)

// RegisterPath is the registration endpoint of the host.
const RegisterPath = "/api/register"

// Registration is the identity request sent to the host.
type Registration struct {
	ID       string `json:"id,omitempty"`
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint,omitempty"`
}

type registered struct {
	ID   string `json:"id"`
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// NewCAPool reads a PEM CA bundle.
func NewCAPool(caPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	return pool, nil
}

// Register asks the host at baseURL for a context certificate and stores
// the certificate, key and assigned id in dir. It returns the id.
func Register(ctx context.Context, hc *http.Client, baseURL string, reg Registration, dir string) (string, error) {
	b, err := json.Marshal(reg)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+RegisterPath, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("register failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server error: %s", strings.TrimSpace(string(data)))
	}

	var out registered
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.ID == "" || out.Cert == "" || out.Key == "" {
		return "", errors.New("incomplete registration response")
	}

	files := []struct {
		name string
		data string
	}{
		{CertFile, out.Cert},
		{KeyFile, out.Key},
		{IDFile, out.ID},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte(f.data), 0o600); err != nil {
			return "", fmt.Errorf("failed to save %s: %w", f.name, err)
		}
	}
	return out.ID, nil
}

// LoadClientCertificate builds an HTTP client that presents the stored
// context certificate and trusts only the host CA.
func LoadClientCertificate(certFile, keyFile, caFile string) (*http.Client, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	pool, err := NewCAPool(caFile)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}
