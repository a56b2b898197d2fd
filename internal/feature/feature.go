// Package feature holds the page-augmentation features hosted by an
// execution context and the registry that persists and fans out their
// enabled flags.
package feature

import (
	"context"
	"sync"

	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/message"
)

// Feature is one independently toggled capability of the host.
type Feature interface {
	Name() string
	Enabled() bool
	// Init loads persisted state, including the enabled flag.
	Init(ctx context.Context) error
	// SetEnabled applies a toggle locally. Persisting and broadcasting are
	// the registry's job.
	SetEnabled(ctx context.Context, enabled bool)
	// Handle serves a decoded request addressed to this feature and returns
	// the JSON-encodable response.
	Handle(ctx context.Context, req message.Request) any
	// Cleanup releases in-memory state when the context goes away.
	Cleanup()
}

// StateKey is the storage key of a feature's enabled flag.
func StateKey(name string) string { return "feature_" + name }

// LoadState reads the persisted flag of name; an absent flag means enabled.
func LoadState(ctx context.Context, s kv.Store, name string) (bool, error) {
	enabled, ok, err := kv.Lookup[bool](ctx, s, StateKey(name))
	if err != nil {
		return true, err
	}
	if !ok {
		return true, nil
	}
	return enabled, nil
}

// toggle is the enabled flag shared by every feature implementation.
type toggle struct {
	mu sync.RWMutex
	on bool
}

func (t *toggle) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.on
}

func (t *toggle) set(on bool) {
	t.mu.Lock()
	t.on = on
	t.mu.Unlock()
}
