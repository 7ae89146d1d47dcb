package provider

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Profile is the resolved connection record for one (provider, model)
// pair. Profiles are read-only after resolution.
type Profile struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url,omitempty"`
	APIKey   string `json:"-"`
	Quirks   Quirks `json:"quirks"`
}

// Overrides carries explicit per-request connection parameters. They
// take precedence over environment-derived values.
type Overrides struct {
	APIKey  string
	BaseURL string
}

// Env supplies environment-style values to the resolver. Threading it
// in explicitly keeps resolution reproducible in tests.
type Env func(key string) string

// Resolver maps provider/model selections to profiles.
type Resolver struct {
	env    Env
	logger zerolog.Logger
}

// NewResolver creates a resolver reading credentials through env.
func NewResolver(env Env, logger zerolog.Logger) *Resolver {
	if env == nil {
		env = func(string) string { return "" }
	}
	return &Resolver{env: env, logger: logger}
}

// Resolve validates the provider/model pair and resolves credentials
// and endpoint. Credential order: explicit override, then the
// provider's environment variable, then a placeholder for providers
// that permit unauthenticated local access.
func (r *Resolver) Resolve(providerName, model string, o Overrides) (*Profile, error) {
	info, ok := Lookup(providerName)
	if !ok {
		return nil, NewConfigError("unknown provider %q (available: %s)",
			providerName, strings.Join(Providers(), ", "))
	}

	if !KnowsModel(providerName, model) {
		return nil, NewConfigError("unsupported model/provider combination: %q is not a %s model (available: %s)",
			model, providerName, strings.Join(info.Models, ", "))
	}

	profile := &Profile{
		Provider: providerName,
		Model:    model,
		Quirks:   quirksFor(info, model),
	}

	profile.BaseURL = o.BaseURL
	if profile.BaseURL == "" {
		profile.BaseURL = r.env(info.EndpointEnv)
	}
	if profile.BaseURL == "" {
		profile.BaseURL = info.BaseURL
	}
	if info.Local {
		profile.BaseURL = normalizeLocalURL(profile.BaseURL)
	}

	profile.APIKey = o.APIKey
	if profile.APIKey == "" {
		profile.APIKey = r.env(info.CredentialEnv)
	}
	if profile.APIKey == "" {
		if info.RequiresAPIKey {
			return nil, &ConfigError{
				Message: fmt.Sprintf("missing credential for provider %q", providerName),
				EnvVar:  info.CredentialEnv,
			}
		}
		profile.APIKey = info.PlaceholderKey
	}

	r.logger.Debug().
		Str("provider", providerName).
		Str("model", model).
		Str("base_url", profile.BaseURL).
		Bool("local", profile.Quirks.Local).
		Msg("Provider profile resolved")

	return profile, nil
}

// ValidateTemperature rejects temperatures a fixed-temperature model
// cannot honor. Rejecting keeps behavior auditable; the profile never
// silently clamps.
func (p *Profile) ValidateTemperature(temperature float64) error {
	if p.Quirks.FixedTemperature == nil {
		return nil
	}
	if temperature == 0 || temperature == *p.Quirks.FixedTemperature {
		return nil
	}
	return NewConfigError("model %q only supports temperature %.1f (requested %.2f)",
		p.Model, *p.Quirks.FixedTemperature, temperature)
}

// normalizeLocalURL ensures local OpenAI-compatible endpoints carry the
// /v1 suffix the SDK expects.
func normalizeLocalURL(url string) string {
	if url == "" {
		return url
	}
	url = strings.TrimRight(url, "/")
	if !strings.HasSuffix(url, "/v1") {
		url += "/v1"
	}
	return url
}
