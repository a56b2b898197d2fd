// Package message turns cross-context envelopes into a closed set of typed
// requests. Every operation a feature understands has exactly one Request
// variant; decoding is the only place operation names are matched.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/gnoixus/internal/models"
)

// Feature names.
const (
	Shell           = ""
	PasswordManager = "passwordManager"
	GithubSearch    = "githubSearch"
	DarkMode        = "darkMode"
	LinterFormatter = "linterFormatter"
)

var (
	// ErrUnknownAction is returned for a type the feature does not define.
	ErrUnknownAction = errors.New("Unknown action") //nolint:staticcheck // wire text
	// ErrUnknownFeature is returned for a feature name with no decoder.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrInvalidData is returned when the payload is malformed or incomplete.
	ErrInvalidData = errors.New("invalid request data")
)

// Request is implemented only by the types in this package.
type Request interface {
	request()
}

// Password manager requests.
type (
	Setup  struct{ MasterKey string }
	Unlock struct{ MasterKey string }
	Lock   struct{}
	Add    struct{ Site, Username, Password string }
	Get    struct{ Site string }
	List   struct{}
	Delete struct{ Site string }
	// VaultState asks for the lifecycle state of the vault.
	VaultState struct{}
	// Generate carries the options of a generated password; nil fields mean
	// "use the default".
	Generate struct {
		Length                                 int
		Lowercase, Uppercase, Numbers, Symbols *bool
	}
)

// GitHub search requests.
type (
	Search struct {
		Query string
		Kind  string // "users" or "repositories"
	}
	SetToken   struct{ Token string }
	ClearCache struct{}
)

// Dark mode requests.
type (
	SetIntensity struct{ Intensity float64 }
	Stylesheet   struct{}
)

// Linter/formatter requests.
type (
	Format struct{ Code, Language string }
	Lint   struct{ Code, Language string }
)

// Shell requests.
type (
	// ToggleFeature is a user command: persist, apply and broadcast.
	ToggleFeature struct {
		FeatureName string
		Enabled     bool
	}
	// FeatureToggled is a peer notification: apply locally only.
	FeatureToggled struct {
		FeatureName string
		Enabled     bool
	}
	FeatureStates struct{}
)

func (Setup) request()          {}
func (Unlock) request()         {}
func (Lock) request()           {}
func (Add) request()            {}
func (Get) request()            {}
func (List) request()           {}
func (Delete) request()         {}
func (Generate) request()       {}
func (VaultState) request()     {}
func (Search) request()         {}
func (SetToken) request()       {}
func (ClearCache) request()     {}
func (SetIntensity) request()   {}
func (Stylesheet) request()     {}
func (Format) request()         {}
func (Lint) request()           {}
func (ToggleFeature) request()  {}
func (FeatureToggled) request() {}
func (FeatureStates) request()  {}

// payload is the union of every data field on the wire.
type payload struct {
	MasterKey   string   `json:"masterKey"`
	Site        string   `json:"site"`
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Length      int      `json:"length"`
	Lowercase   *bool    `json:"lowercase"`
	Uppercase   *bool    `json:"uppercase"`
	Numbers     *bool    `json:"numbers"`
	Symbols     *bool    `json:"symbols"`
	Query       string   `json:"query"`
	Type        string   `json:"type"`
	Token       string   `json:"token"`
	Intensity   *float64 `json:"intensity"`
	Code        string   `json:"code"`
	Language    string   `json:"language"`
	FeatureName string   `json:"featureName"`
	Enabled     *bool    `json:"enabled"`
}

type decoder func(p payload) (Request, error)

func required(fields ...string) error {
	for _, f := range fields {
		if f == "" {
			return ErrInvalidData
		}
	}
	return nil
}

var decoders = map[string]map[string]decoder{
	PasswordManager: {
		"setup":  func(p payload) (Request, error) { return Setup{MasterKey: p.MasterKey}, nil },
		"unlock": func(p payload) (Request, error) { return Unlock{MasterKey: p.MasterKey}, nil },
		"lock":   func(payload) (Request, error) { return Lock{}, nil },
		"add": func(p payload) (Request, error) {
			return Add{Site: p.Site, Username: p.Username, Password: p.Password}, required(p.Site)
		},
		"get":    func(p payload) (Request, error) { return Get{Site: p.Site}, required(p.Site) },
		"list":   func(payload) (Request, error) { return List{}, nil },
		"delete": func(p payload) (Request, error) { return Delete{Site: p.Site}, required(p.Site) },
		"status": func(payload) (Request, error) { return VaultState{}, nil },
		"generate": func(p payload) (Request, error) {
			return Generate{
				Length:    p.Length,
				Lowercase: p.Lowercase,
				Uppercase: p.Uppercase,
				Numbers:   p.Numbers,
				Symbols:   p.Symbols,
			}, nil
		},
	},
	GithubSearch: {
		"search":     func(p payload) (Request, error) { return Search{Query: p.Query, Kind: p.Type}, nil },
		"setToken":   func(p payload) (Request, error) { return SetToken{Token: p.Token}, nil },
		"clearCache": func(payload) (Request, error) { return ClearCache{}, nil },
	},
	DarkMode: {
		"setIntensity": func(p payload) (Request, error) {
			if p.Intensity == nil {
				return nil, ErrInvalidData
			}
			return SetIntensity{Intensity: *p.Intensity}, nil
		},
		"stylesheet": func(payload) (Request, error) { return Stylesheet{}, nil },
	},
	LinterFormatter: {
		"format": func(p payload) (Request, error) { return Format{Code: p.Code, Language: p.Language}, nil },
		"lint":   func(p payload) (Request, error) { return Lint{Code: p.Code, Language: p.Language}, nil },
	},
	Shell: {
		"toggleFeature": func(p payload) (Request, error) {
			if p.Enabled == nil {
				return nil, ErrInvalidData
			}
			return ToggleFeature{FeatureName: p.FeatureName, Enabled: *p.Enabled}, required(p.FeatureName)
		},
		"featureToggled": func(p payload) (Request, error) {
			if p.Enabled == nil {
				return nil, ErrInvalidData
			}
			return FeatureToggled{FeatureName: p.FeatureName, Enabled: *p.Enabled}, required(p.FeatureName)
		},
		"getFeatureStates": func(payload) (Request, error) { return FeatureStates{}, nil },
	},
}

// Decode maps env to its Request variant.
func Decode(env models.Envelope) (Request, error) {
	byType, ok := decoders[env.Feature]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, env.Feature)
	}
	decode, ok := byType[env.Type]
	if !ok {
		return nil, ErrUnknownAction
	}

	var p payload
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
	}
	req, err := decode(p)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Encode builds an envelope for feature and typ with data marshalled as the payload.
func Encode(feature, typ string, data any) (models.Envelope, error) {
	env := models.Envelope{Feature: feature, Type: typ}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return env, fmt.Errorf("encode %s/%s: %w", feature, typ, err)
	}
	env.Data = raw
	return env, nil
}
