// Package dispatch routes envelopes to the features of a registry and turns
// every outcome into a response object.
package dispatch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/feature"
	"github.com/atinyakov/gnoixus/internal/message"
	"github.com/atinyakov/gnoixus/internal/models"
)

const (
	errFeatureDisabled = "Feature disabled"
	errInvalidRequest  = "Invalid request"
)

// Dispatcher serves envelopes for one host. It never retries and never
// returns an error: every failure is a response with success=false.
type Dispatcher struct {
	registry *feature.Registry
	log      *zap.Logger
}

func New(registry *feature.Registry, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{registry: registry, log: log}
}

// Dispatch handles env sent by the context sender.
func (d *Dispatcher) Dispatch(ctx context.Context, sender string, env models.Envelope) any {
	d.log.Debug("dispatching message",
		zap.String("sender", sender),
		zap.String("feature", env.Feature),
		zap.String("type", env.Type),
	)

	if env.Feature == message.Shell {
		return d.shell(ctx, sender, env)
	}

	f, ok := d.registry.Lookup(env.Feature)
	if !ok {
		return models.Status{}
	}
	if !f.Enabled() {
		return models.Fail(errFeatureDisabled)
	}

	req, err := message.Decode(env)
	if err != nil {
		return d.decodeFailure(err)
	}
	return f.Handle(ctx, req)
}

func (d *Dispatcher) shell(ctx context.Context, sender string, env models.Envelope) any {
	req, err := message.Decode(env)
	if err != nil {
		return d.decodeFailure(err)
	}

	switch r := req.(type) {
	case message.ToggleFeature:
		res, err := d.registry.Toggle(ctx, sender, r.FeatureName, r.Enabled)
		if err != nil {
			d.log.Error("error toggling feature", zap.String("feature", r.FeatureName), zap.Error(err))
			return models.Status{}
		}
		if res.Failed > 0 {
			d.log.Warn("toggle not delivered to every context",
				zap.String("feature", r.FeatureName),
				zap.Int("delivered", res.Delivered),
				zap.Int("failed", res.Failed),
			)
		}
		return models.ToggleResponse{Status: models.OK(), BroadcastResult: res}
	case message.FeatureToggled:
		if err := d.registry.Apply(ctx, r.FeatureName, r.Enabled); err != nil {
			d.log.Warn("ignoring toggle notification", zap.String("feature", r.FeatureName), zap.Error(err))
			return models.Status{}
		}
		return models.OK()
	case message.FeatureStates:
		states, err := d.registry.States(ctx)
		if err != nil {
			d.log.Error("error loading feature states", zap.Error(err))
			return models.FeatureStatesResponse{}
		}
		return models.FeatureStatesResponse{Status: models.OK(), States: states}
	default:
		return models.Fail(message.ErrUnknownAction.Error())
	}
}

func (d *Dispatcher) decodeFailure(err error) models.Status {
	switch {
	case errors.Is(err, message.ErrUnknownAction):
		return models.Fail(message.ErrUnknownAction.Error())
	case errors.Is(err, message.ErrInvalidData):
		d.log.Debug("invalid request data", zap.Error(err))
		return models.Fail(errInvalidRequest)
	default:
		return models.Status{}
	}
}
