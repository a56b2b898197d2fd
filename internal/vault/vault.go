// Package vault implements the password manager: a master-key gated state
// machine with an inactivity auto-lock over an encrypted secret store.
package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/crypt"
	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/models"
)

// Error is a vault failure whose text is reported to callers as is.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrKeyTooShort Error = "Master key must be at least 8 characters"
	ErrNotSetUp    Error = "Master key not set up"
	ErrInvalidKey  Error = "Invalid master key"
	ErrLocked      Error = "Password manager is locked"
	ErrNotFound    Error = "Password not found"
	ErrDecrypt     Error = "Failed to decrypt password"
)

const (
	// MinKeyLength is the shortest accepted master key.
	MinKeyLength = 8
	// DefaultLockDuration is the inactivity period after which the vault locks.
	DefaultLockDuration = 5 * time.Minute
)

// State is the lifecycle position of a Vault.
type State int

const (
	Uninitialized State = iota
	Locked
	Unlocked
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Vault.
type Option func(*Vault)

// WithLockDuration sets the inactivity timeout.
func WithLockDuration(d time.Duration) Option {
	return func(v *Vault) { v.lockDuration = d }
}

// WithClock replaces time.Now for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(v *Vault) { v.log = log }
}

// Vault holds the session state of the password manager. The master key
// lives only in memory and is present exactly while the vault is unlocked.
// All methods are safe for concurrent use; calls are serialized.
type Vault struct {
	mu sync.Mutex

	kv    kv.Store
	store *SecretStore
	log   *zap.Logger

	now          func() time.Time
	lockDuration time.Duration

	unlocked bool
	key      string
	deadline time.Time
	timer    *time.Timer
}

// New returns a locked Vault persisted in s.
func New(s kv.Store, opts ...Option) *Vault {
	v := &Vault{
		kv:           s,
		store:        NewSecretStore(s),
		log:          zap.NewNop(),
		now:          time.Now,
		lockDuration: DefaultLockDuration,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Setup stores the verifier for key and unlocks the vault. Running it again
// replaces the verifier.
func (v *Vault) Setup(ctx context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(key) < MinKeyLength {
		return ErrKeyTooShort
	}

	err := v.kv.Set(ctx, map[string]any{
		KeyVerifier: crypt.Verifier(key, verifierSalt),
		KeyIsSet:    true,
	})
	if err != nil {
		return fmt.Errorf("store verifier: %w", err)
	}

	v.unlockLocked(key)
	v.log.Info("master key set up")
	return nil
}

// Unlock checks key against the stored verifier and unlocks on a match.
func (v *Vault) Unlock(ctx context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expireLocked()

	stored, ok, err := kv.Lookup[string](ctx, v.kv, KeyVerifier)
	if err != nil {
		return fmt.Errorf("load verifier: %w", err)
	}
	if !ok || stored == "" {
		return ErrNotSetUp
	}
	// Plain string equality, not constant time.
	if crypt.Verifier(key, verifierSalt) != stored {
		return ErrInvalidKey
	}

	v.unlockLocked(key)
	v.log.Info("password manager unlocked")
	return nil
}

// Lock forgets the master key and cancels the auto-lock. Locking a locked
// vault is a no-op.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unlocked {
		v.log.Info("password manager locked")
	}
	v.lockLocked()
}

// Close locks the vault; it is called when the owning context goes away.
func (v *Vault) Close() { v.Lock() }

// Add encrypts secret under the master key and stores it for site,
// replacing any previous entry.
func (v *Vault) Add(ctx context.Context, site, username, secret string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.keyLocked()
	if err != nil {
		return err
	}

	encrypted, err := crypt.Encrypt(secret, key)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	now := v.now().UnixMilli()
	err = v.store.Upsert(ctx, site, models.Credential{
		Site:      site,
		Username:  username,
		Encrypted: encrypted,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}

	v.armLocked()
	v.log.Debug("password saved", zap.String("site", site))
	return nil
}

// Get returns the username and decrypted password stored for site.
func (v *Vault) Get(ctx context.Context, site string) (username, password string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.keyLocked()
	if err != nil {
		return "", "", err
	}

	rec, ok, err := v.store.Get(ctx, site)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", ErrNotFound
	}

	// An empty secret is indistinguishable from a failed decryption.
	plain := crypt.Decrypt(rec.Encrypted, key)
	if plain == "" {
		return "", "", ErrDecrypt
	}

	v.armLocked()
	return rec.Username, plain, nil
}

// List returns every entry without ciphertext or plaintext, sorted by site.
func (v *Vault) List(ctx context.Context) ([]models.CredentialSummary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.keyLocked(); err != nil {
		return nil, err
	}

	records, err := v.store.All(ctx)
	if err != nil {
		return nil, err
	}
	entries := lo.MapToSlice(records, func(_ string, c models.Credential) models.CredentialSummary {
		return models.CredentialSummary{Site: c.Site, Username: c.Username, UpdatedAt: c.UpdatedAt}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Site < entries[j].Site })

	v.armLocked()
	return entries, nil
}

// Delete removes the entry for site.
func (v *Vault) Delete(ctx context.Context, site string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.keyLocked(); err != nil {
		return err
	}

	existed, err := v.store.Remove(ctx, site)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}

	v.armLocked()
	v.log.Debug("password deleted", zap.String("site", site))
	return nil
}

// State reports where the vault is in its lifecycle.
func (v *Vault) State(ctx context.Context) (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expireLocked()

	if v.unlocked {
		return Unlocked, nil
	}
	isSet, _, err := kv.Lookup[bool](ctx, v.kv, KeyIsSet)
	if err != nil {
		return Locked, err
	}
	if !isSet {
		return Uninitialized, nil
	}
	return Locked, nil
}

// Deadline returns the auto-lock deadline, or the zero time while locked.
func (v *Vault) Deadline() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deadline
}

func (v *Vault) keyLocked() (string, error) {
	v.expireLocked()
	if !v.unlocked {
		return "", ErrLocked
	}
	return v.key, nil
}

func (v *Vault) unlockLocked(key string) {
	v.key = key
	v.unlocked = true
	v.armLocked()
}

func (v *Vault) lockLocked() {
	v.key = ""
	v.unlocked = false
	v.deadline = time.Time{}
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

// armLocked moves the deadline to now+lockDuration and reschedules the
// auto-lock task.
func (v *Vault) armLocked() {
	v.deadline = v.now().Add(v.lockDuration)
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = time.AfterFunc(v.lockDuration, v.autoLock)
}

// expireLocked applies a deadline that passed before the timer fired.
func (v *Vault) expireLocked() bool {
	if v.unlocked && !v.now().Before(v.deadline) {
		v.lockLocked()
		v.log.Info("auto-locked due to inactivity")
		return true
	}
	return false
}

func (v *Vault) autoLock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expireLocked()
}
