package provider

// Quirks is the declarative capability record attached to a profile.
// The orchestrator consults it instead of branching on provider names.
type Quirks struct {
	// FixedTemperature is set for model families that accept exactly
	// one sampling temperature. Requests for any other temperature are
	// rejected, never clamped.
	FixedTemperature *float64 `json:"fixed_temperature,omitempty"`

	// TokenLimitParam names the request parameter that carries the
	// output-token limit ("max_tokens" or "max_completion_tokens").
	TokenLimitParam string `json:"token_limit_param"`

	// RequiresAPIKey marks providers that refuse unauthenticated calls.
	RequiresAPIKey bool `json:"requires_api_key"`

	// Local marks self-hosted providers. Local models carry a zero cost
	// rate by definition.
	Local bool `json:"local"`
}

// Info describes one provider family known to the resolver.
type Info struct {
	Name           string
	BaseURL        string // default endpoint; empty means SDK default
	CredentialEnv  string // environment variable holding the API key
	EndpointEnv    string // environment variable overriding the endpoint
	PlaceholderKey string // credential used when none is required
	Models         []string
	RequiresAPIKey bool
	Local          bool
}

const (
	TokenLimitDefault    = "max_tokens"
	TokenLimitCompletion = "max_completion_tokens"
)

func floatPtr(v float64) *float64 { return &v }

// catalog lists every supported provider and its known model set.
var catalog = map[string]Info{
	"openai": {
		Name:           "openai",
		CredentialEnv:  "OPENAI_API_KEY",
		EndpointEnv:    "OPENAI_API_URL",
		RequiresAPIKey: true,
		Models: []string{
			"gpt-5",
			"gpt-5-mini",
			"gpt-5-nano",
			"gpt-4o",
			"gpt-4o-mini",
		},
	},
	"anthropic": {
		Name:           "anthropic",
		CredentialEnv:  "ANTHROPIC_API_KEY",
		EndpointEnv:    "ANTHROPIC_API_URL",
		RequiresAPIKey: true,
		Models: []string{
			"claude-opus-4-1-20250805",
			"claude-sonnet-4-20250514",
			"claude-3-5-sonnet-20241022",
			"claude-3-5-haiku-20241022",
		},
	},
	"ollama": {
		Name:           "ollama",
		BaseURL:        "http://localhost:11434/v1",
		CredentialEnv:  "OLLAMA_API_KEY",
		EndpointEnv:    "OLLAMA_API_URL",
		PlaceholderKey: "ollama",
		Local:          true,
		Models: []string{
			"gpt-oss:20b",
			"gpt-oss:120b",
			"llama3.1:8b",
			"qwen2.5:7b",
		},
	},
	"lmstudio": {
		Name:           "lmstudio",
		BaseURL:        "http://localhost:1234/v1",
		CredentialEnv:  "LMSTUDIO_API_KEY",
		EndpointEnv:    "LMSTUDIO_API_URL",
		PlaceholderKey: "lmstudio",
		Local:          true,
		Models: []string{
			"qwen/qwen3-4b",
			"openai/gpt-oss-20b",
		},
	},
}

// Providers returns the names of all known providers.
func Providers() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}

// Lookup returns catalog information for a provider.
func Lookup(name string) (Info, bool) {
	info, ok := catalog[name]
	return info, ok
}

// KnowsModel reports whether a model belongs to a provider's model set.
func KnowsModel(providerName, model string) bool {
	info, ok := catalog[providerName]
	if !ok {
		return false
	}
	for _, m := range info.Models {
		if m == model {
			return true
		}
	}
	return false
}

// quirksFor derives the quirk record for a resolved (provider, model).
func quirksFor(info Info, model string) Quirks {
	q := Quirks{
		TokenLimitParam: TokenLimitDefault,
		RequiresAPIKey:  info.RequiresAPIKey,
		Local:           info.Local,
	}

	// The gpt-5 family accepts only the default temperature and takes
	// its output limit through max_completion_tokens.
	if info.Name == "openai" && isGPT5Family(model) {
		q.FixedTemperature = floatPtr(1.0)
		q.TokenLimitParam = TokenLimitCompletion
	}

	return q
}

func isGPT5Family(model string) bool {
	return len(model) >= 5 && model[:5] == "gpt-5"
}
