// Package models defines the core data structures exchanged between
// execution contexts and persisted by the feature host.
package models

import "encoding/json"

// Envelope is the unit of cross-context communication.
type Envelope struct {
	// Feature names the target feature; empty for shell messages such as toggles.
	Feature string `json:"feature"`
	// Type selects the operation within the feature.
	Type string `json:"type"`
	// Data carries the operation payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// Status is embedded in every response.
type Status struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK returns a successful status.
func OK() Status { return Status{Success: true} }

// Fail returns a failed status carrying msg.
func Fail(msg string) Status { return Status{Error: msg} }

// Credential is one entry of the secret store.
type Credential struct {
	// Site is the unique key of the entry.
	Site string `json:"site"`
	// Username is stored in plain form.
	Username string `json:"username"`
	// Encrypted holds the ciphertext of the secret; never plaintext.
	Encrypted string `json:"encrypted"`
	// CreatedAt and UpdatedAt are Unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// CredentialSummary is the listing projection of a Credential.
type CredentialSummary struct {
	Site      string `json:"site"`
	Username  string `json:"username"`
	UpdatedAt int64  `json:"updatedAt"`
}

// CredentialResponse answers a vault "get".
type CredentialResponse struct {
	Status
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// ListResponse answers a successful vault "list". Entries is never omitted.
type ListResponse struct {
	Status
	Entries []CredentialSummary `json:"entries"`
}

// PasswordResponse answers a vault "generate".
type PasswordResponse struct {
	Status
	Password string `json:"password,omitempty"`
}

// VaultStateResponse answers a vault "status".
type VaultStateResponse struct {
	Status
	State string `json:"state,omitempty"`
}

// FeatureStatesResponse maps feature names to their enabled flag.
type FeatureStatesResponse struct {
	Status
	States map[string]bool `json:"states,omitempty"`
}

// BroadcastResult reports a best-effort fan-out.
type BroadcastResult struct {
	Delivered int   `json:"delivered"`
	Failed    int   `json:"failed"`
	Err       error `json:"-"`
}

// ToggleResponse answers a toggleFeature request.
type ToggleResponse struct {
	Status
	BroadcastResult
}

// SearchResult mirrors the GitHub search API payload.
type SearchResult struct {
	TotalCount        int               `json:"total_count"`
	IncompleteResults bool              `json:"incomplete_results"`
	Items             []json.RawMessage `json:"items"`
}

// SearchResponse answers a githubSearch "search".
type SearchResponse struct {
	Status
	Result *SearchResult `json:"result,omitempty"`
}

// StylesheetResponse answers a darkMode "stylesheet".
type StylesheetResponse struct {
	Status
	CSS       string  `json:"css"`
	Intensity float64 `json:"intensity"`
}

// LintIssue is a single finding produced by the linter.
type LintIssue struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // "error" or "warning"
}

// FormatResponse answers linterFormatter "format" and "lint".
type FormatResponse struct {
	Status
	Formatted string      `json:"formatted,omitempty"`
	Errors    []LintIssue `json:"errors,omitempty"`
}

// Execution context kinds.
const (
	KindContent    = "content"
	KindPopup      = "popup"
	KindBackground = "background"
)

// Peer is a registered execution context.
type Peer struct {
	// ID is the context identifier, also the certificate Common Name.
	ID string `json:"id"`
	// Kind is "popup", "content" or "background".
	Kind string `json:"kind"`
	// Endpoint is where notifications are delivered; empty if the context only calls out.
	Endpoint string `json:"endpoint,omitempty"`
	// LastSeen is a Unix timestamp in seconds.
	LastSeen int64 `json:"last_seen"`
}
