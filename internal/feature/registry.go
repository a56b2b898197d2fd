package feature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/message"
	"github.com/atinyakov/gnoixus/internal/models"
)

// ErrUnknownFeature is returned for a name the registry does not hold.
var ErrUnknownFeature = errors.New("unknown feature")

// Notifier delivers an envelope to every live context except from.
type Notifier interface {
	Broadcast(ctx context.Context, from string, env models.Envelope) models.BroadcastResult
}

// Registry owns the features of one host, in registration order.
type Registry struct {
	store    kv.Store
	notifier Notifier
	log      *zap.Logger

	order    []string
	features map[string]Feature
}

// NewRegistry registers features. A nil notifier disables fan-out.
func NewRegistry(store kv.Store, notifier Notifier, log *zap.Logger, features ...Feature) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		store:    store,
		notifier: notifier,
		log:      log,
		features: make(map[string]Feature, len(features)),
	}
	for _, f := range features {
		r.order = append(r.order, f.Name())
		r.features[f.Name()] = f
	}
	return r
}

// Lookup resolves a feature by exact name.
func (r *Registry) Lookup(name string) (Feature, bool) {
	f, ok := r.features[name]
	return f, ok
}

// Names lists the registered feature names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Init initialises every feature. A failing feature is logged and skipped.
func (r *Registry) Init(ctx context.Context) {
	for _, name := range r.order {
		if err := r.features[name].Init(ctx); err != nil {
			r.log.Error("failed to initialize feature", zap.String("feature", name), zap.Error(err))
			continue
		}
		r.log.Info("feature initialized", zap.String("feature", name))
	}
}

// Toggle persists the flag of name, applies it locally and notifies the other
// live contexts. Notification failures are counted in the result, never
// returned as an error.
func (r *Registry) Toggle(ctx context.Context, sender, name string, enabled bool) (models.BroadcastResult, error) {
	f, ok := r.features[name]
	if !ok {
		return models.BroadcastResult{}, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	if err := kv.Put(ctx, r.store, StateKey(name), enabled); err != nil {
		return models.BroadcastResult{}, fmt.Errorf("persist %s: %w", name, err)
	}
	f.SetEnabled(ctx, enabled)
	r.log.Info("feature toggled",
		zap.String("feature", name),
		zap.Bool("enabled", enabled),
		zap.String("sender", sender),
	)

	if r.notifier == nil {
		return models.BroadcastResult{}, nil
	}
	env, err := message.Encode(message.Shell, "featureToggled", map[string]any{
		"featureName": name,
		"enabled":     enabled,
	})
	if err != nil {
		return models.BroadcastResult{}, err
	}
	return r.notifier.Broadcast(ctx, sender, env), nil
}

// Apply handles a toggle notification from a peer: persist and apply
// locally, without broadcasting again.
func (r *Registry) Apply(ctx context.Context, name string, enabled bool) error {
	f, ok := r.features[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	if err := kv.Put(ctx, r.store, StateKey(name), enabled); err != nil {
		r.log.Warn("failed to persist peer toggle", zap.String("feature", name), zap.Error(err))
	}
	f.SetEnabled(ctx, enabled)
	return nil
}

// States returns the persisted flag of every registered feature.
func (r *Registry) States(ctx context.Context) (map[string]bool, error) {
	keys := lo.Map(r.order, func(name string, _ int) string { return StateKey(name) })
	values, err := r.store.Get(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("load feature states: %w", err)
	}

	states := make(map[string]bool, len(r.order))
	for _, name := range r.order {
		states[name] = true
		raw, ok := values[StateKey(name)]
		if !ok {
			continue
		}
		var enabled bool
		if err := json.Unmarshal(raw, &enabled); err != nil {
			return nil, fmt.Errorf("decode %s: %w", StateKey(name), err)
		}
		states[name] = enabled
	}
	return states, nil
}

// Cleanup tears down every feature.
func (r *Registry) Cleanup() {
	for _, name := range r.order {
		r.features[name].Cleanup()
	}
}
