package vault

import (
	"context"
	"fmt"

	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/models"
)

// Storage keys owned by the vault.
const (
	KeyVerifier  = "pw_master_key_hash"
	KeyIsSet     = "pw_master_key_set"
	KeyStore     = "pw_store"
	verifierSalt = "gnoixus-salt"
)

// SecretStore maps site identifiers to encrypted credential records. The
// whole mapping is one blob under KeyStore; every mutation rewrites it.
type SecretStore struct {
	kv kv.Store
}

// NewSecretStore returns a SecretStore persisted in s.
func NewSecretStore(s kv.Store) *SecretStore {
	return &SecretStore{kv: s}
}

// All returns every record keyed by site. A store that was never written is empty.
func (s *SecretStore) All(ctx context.Context) (map[string]models.Credential, error) {
	records, ok, err := kv.Lookup[map[string]models.Credential](ctx, s.kv, KeyStore)
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	if !ok || records == nil {
		records = make(map[string]models.Credential)
	}
	return records, nil
}

// Get returns the record for site.
func (s *SecretStore) Get(ctx context.Context, site string) (models.Credential, bool, error) {
	records, err := s.All(ctx)
	if err != nil {
		return models.Credential{}, false, err
	}
	rec, ok := records[site]
	return rec, ok, nil
}

// Upsert inserts or replaces the record for site. An existing record keeps
// its creation time.
func (s *SecretStore) Upsert(ctx context.Context, site string, rec models.Credential) error {
	records, err := s.All(ctx)
	if err != nil {
		return err
	}
	if prev, ok := records[site]; ok && prev.CreatedAt != 0 && prev.CreatedAt < rec.CreatedAt {
		rec.CreatedAt = prev.CreatedAt
	}
	if rec.UpdatedAt < rec.CreatedAt {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.Site = site
	records[site] = rec
	if err := kv.Put(ctx, s.kv, KeyStore, records); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

// Remove deletes the record for site. It reports whether a record existed.
func (s *SecretStore) Remove(ctx context.Context, site string) (bool, error) {
	records, err := s.All(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := records[site]; !ok {
		return false, nil
	}
	delete(records, site)
	if err := kv.Put(ctx, s.kv, KeyStore, records); err != nil {
		return false, fmt.Errorf("save store: %w", err)
	}
	return true, nil
}
