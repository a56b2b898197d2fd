package feature

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/message"
	"github.com/atinyakov/gnoixus/internal/models"
	"github.com/atinyakov/gnoixus/internal/vault"
)

// Generic failures reported when storage, not the caller, is at fault.
const (
	failSetup  = "Failed to set up master key"
	failUnlock = "Failed to unlock password manager"
	failSave   = "Failed to save password"
	failGet    = "Failed to retrieve password"
	failList   = "Failed to list passwords"
	failDelete = "Failed to delete password"
	failGen    = "Failed to generate password"
	failStatus = "Failed to read password manager state"
)

// PasswordManager exposes a vault to the message protocol.
type PasswordManager struct {
	toggle
	store kv.Store
	vault *vault.Vault
	log   *zap.Logger
}

// NewPasswordManager wraps v. The enabled flag is read from store on Init.
func NewPasswordManager(store kv.Store, v *vault.Vault, log *zap.Logger) *PasswordManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordManager{
		toggle: toggle{on: true},
		store:  store,
		vault:  v,
		log:    log.With(zap.String("feature", message.PasswordManager)),
	}
}

func (p *PasswordManager) Name() string { return message.PasswordManager }

func (p *PasswordManager) Init(ctx context.Context) error {
	enabled, err := LoadState(ctx, p.store, p.Name())
	if err != nil {
		return err
	}
	p.set(enabled)

	state, err := p.vault.State(ctx)
	if err != nil {
		return err
	}
	if state == vault.Uninitialized {
		p.log.Info("master key not set")
	}
	return nil
}

// SetEnabled locks the vault when the feature is disabled.
func (p *PasswordManager) SetEnabled(_ context.Context, enabled bool) {
	p.set(enabled)
	if !enabled {
		p.vault.Lock()
	}
}

func (p *PasswordManager) Cleanup() { p.vault.Close() }

// Vault returns the wrapped vault.
func (p *PasswordManager) Vault() *vault.Vault { return p.vault }

func (p *PasswordManager) Handle(ctx context.Context, req message.Request) any {
	switch r := req.(type) {
	case message.Setup:
		return p.status(p.vault.Setup(ctx, r.MasterKey), failSetup)
	case message.Unlock:
		return p.status(p.vault.Unlock(ctx, r.MasterKey), failUnlock)
	case message.Lock:
		p.vault.Lock()
		return models.OK()
	case message.Add:
		return p.status(p.vault.Add(ctx, r.Site, r.Username, r.Password), failSave)
	case message.Get:
		username, password, err := p.vault.Get(ctx, r.Site)
		if err != nil {
			return models.CredentialResponse{Status: p.fail(err, failGet)}
		}
		return models.CredentialResponse{Status: models.OK(), Username: username, Password: password}
	case message.List:
		entries, err := p.vault.List(ctx)
		if err != nil {
			return p.fail(err, failList)
		}
		if entries == nil {
			entries = []models.CredentialSummary{}
		}
		return models.ListResponse{Status: models.OK(), Entries: entries}
	case message.Delete:
		return p.status(p.vault.Delete(ctx, r.Site), failDelete)
	case message.Generate:
		length, charset := generateOptions(r)
		password, err := vault.GeneratePassword(length, charset)
		if err != nil {
			return models.PasswordResponse{Status: p.fail(err, failGen)}
		}
		return models.PasswordResponse{Status: models.OK(), Password: password}
	case message.VaultState:
		state, err := p.vault.State(ctx)
		if err != nil {
			return models.VaultStateResponse{Status: p.fail(err, failStatus)}
		}
		return models.VaultStateResponse{Status: models.OK(), State: state.String()}
	default:
		return models.Fail(message.ErrUnknownAction.Error())
	}
}

// generateOptions applies the request defaults: length 16, and every
// category unless at least one category is named explicitly.
func generateOptions(r message.Generate) (int, vault.Charset) {
	length := r.Length
	if length == 0 {
		length = vault.DefaultPasswordLength
	}
	if r.Lowercase == nil && r.Uppercase == nil && r.Numbers == nil && r.Symbols == nil {
		return length, vault.AllCharsets
	}
	is := func(b *bool) bool { return b != nil && *b }
	return length, vault.Charset{
		Lowercase: is(r.Lowercase),
		Uppercase: is(r.Uppercase),
		Numbers:   is(r.Numbers),
		Symbols:   is(r.Symbols),
	}
}

func (p *PasswordManager) status(err error, generic string) models.Status {
	if err != nil {
		return p.fail(err, generic)
	}
	return models.OK()
}

// fail reports vault errors verbatim and hides everything else behind generic.
func (p *PasswordManager) fail(err error, generic string) models.Status {
	var verr vault.Error
	if errors.As(err, &verr) {
		return models.Fail(verr.Error())
	}
	p.log.Error(generic, zap.Error(err))
	return models.Fail(generic)
}
