package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File is a Store persisted as a single JSON document. Every call loads the
// document and every mutation rewrites it whole.
type File struct {
	Path string
	mu   sync.Mutex
}

// NewFile returns a Store backed by the JSON document at path.
func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) load() (map[string]json.RawMessage, error) {
	data := make(map[string]json.RawMessage)
	fh, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer fh.Close()
	if err := json.NewDecoder(fh).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode storage: %w", err)
	}
	return data, nil
}

func (f *File) save(data map[string]json.RawMessage) error {
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	tmp := f.Path + ".tmp"
	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	if err := json.NewEncoder(fh).Encode(data); err != nil {
		fh.Close()
		return fmt.Errorf("encode storage: %w", err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f *File) Get(_ context.Context, keys ...string) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *File) Set(_ context.Context, values map[string]any) error {
	encoded, err := Encode(values)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	for k, v := range encoded {
		data[k] = v
	}
	return f.save(data)
}

func (f *File) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(data, k)
	}
	return f.save(data)
}
