// Package kv defines the persistent key-value mapping that backs feature
// flags, the vault verifier and the secret store, together with in-memory
// and file-backed implementations.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is an asynchronous-style key-value namespace. Values are JSON.
type Store interface {
	// Get returns the subset of keys that exist. Missing keys are absent from
	// the result, not an error.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Set writes every entry of values.
	Set(ctx context.Context, values map[string]any) error
	// Remove deletes keys; unknown keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}

// Lookup reads a single key and decodes it into T. The boolean is false
// when the key does not exist.
func Lookup[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var zero T
	values, err := s.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}
	raw, ok := values[key]
	if !ok {
		return zero, false, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// Put writes a single key.
func Put(ctx context.Context, s Store, key string, value any) error {
	return s.Set(ctx, map[string]any{key: value})
}

// Encode marshals every value of a Set call before anything is written.
func Encode(values map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}
