package feature

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/gnoixus/internal/kv"
	"github.com/atinyakov/gnoixus/internal/message"
	"github.com/atinyakov/gnoixus/internal/models"
)

const (
	// DarkModeIntensityKey persists the inversion intensity.
	DarkModeIntensityKey = "darkmode_intensity"

	DefaultIntensity = 0.9
	MinIntensity     = 0.5
	MaxIntensity     = 1.0
)

const darkModeCSS = `html {
  filter: invert(%[1]s) hue-rotate(180deg) !important;
  background-color: #fff !important;
}

img, picture, video, canvas, svg, iframe {
  filter: invert(%[1]s) hue-rotate(180deg) !important;
}

* {
  background-color: inherit !important;
  scrollbar-color: #454a4d #202324 !important;
}
`

// DarkModeStylesheet renders the page inversion stylesheet for intensity.
func DarkModeStylesheet(intensity float64) string {
	return fmt.Sprintf(darkModeCSS, strconv.FormatFloat(intensity, 'f', -1, 64))
}

// DarkMode serves the inversion stylesheet that darkens pages.
type DarkMode struct {
	toggle
	store kv.Store
	log   *zap.Logger

	mu        sync.Mutex
	intensity float64
	applied   bool
}

func NewDarkMode(store kv.Store, log *zap.Logger) *DarkMode {
	if log == nil {
		log = zap.NewNop()
	}
	return &DarkMode{
		toggle:    toggle{on: true},
		store:     store,
		log:       log.With(zap.String("feature", message.DarkMode)),
		intensity: DefaultIntensity,
	}
}

func (d *DarkMode) Name() string { return message.DarkMode }

func (d *DarkMode) Init(ctx context.Context) error {
	enabled, err := LoadState(ctx, d.store, d.Name())
	if err != nil {
		return err
	}
	intensity, ok, err := kv.Lookup[float64](ctx, d.store, DarkModeIntensityKey)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if ok && validIntensity(intensity) {
		d.intensity = intensity
	}
	d.mu.Unlock()

	d.SetEnabled(ctx, enabled)
	return nil
}

func (d *DarkMode) SetEnabled(_ context.Context, enabled bool) {
	d.set(enabled)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.applied == enabled {
		return
	}
	d.applied = enabled
	if enabled {
		d.log.Info("dark mode applied", zap.Float64("intensity", d.intensity))
	} else {
		d.log.Info("dark mode removed")
	}
}

func (d *DarkMode) Cleanup() {
	d.mu.Lock()
	d.applied = false
	d.mu.Unlock()
}

// Applied reports whether the stylesheet is currently in effect.
func (d *DarkMode) Applied() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applied
}

// Intensity returns the current inversion intensity.
func (d *DarkMode) Intensity() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.intensity
}

func (d *DarkMode) Handle(ctx context.Context, req message.Request) any {
	switch r := req.(type) {
	case message.SetIntensity:
		if !validIntensity(r.Intensity) {
			return models.Fail("Intensity must be between 0.5 and 1")
		}
		if err := kv.Put(ctx, d.store, DarkModeIntensityKey, r.Intensity); err != nil {
			d.log.Error("failed to save intensity", zap.Error(err))
			return models.Fail("Failed to save intensity")
		}
		d.mu.Lock()
		d.intensity = r.Intensity
		d.mu.Unlock()
		return d.stylesheet()
	case message.Stylesheet:
		return d.stylesheet()
	default:
		return models.Fail(message.ErrUnknownAction.Error())
	}
}

func (d *DarkMode) stylesheet() models.StylesheetResponse {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := models.StylesheetResponse{Status: models.OK(), Intensity: d.intensity}
	if d.applied {
		resp.CSS = DarkModeStylesheet(d.intensity)
	}
	return resp
}

func validIntensity(v float64) bool {
	return v >= MinIntensity && v <= MaxIntensity
}
