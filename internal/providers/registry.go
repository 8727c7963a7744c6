package providers

import "strings"

// ProviderSpec holds metadata for one OpenAI-compatible backend.
type ProviderSpec struct {
	Name              string   // config value, e.g. "deepseek"
	Keywords          []string // model-name keywords for matching (lowercase)
	EnvKey            string   // env var for API key
	DisplayName       string   // shown by `nao debug`
	DefaultBaseURL    string   // empty = OpenAI's default
	IsGateway         bool     // can route any model (OpenRouter)
	IsLocal           bool     // local deployment, key optional (Ollama)
	DetectByKeyPrefix string   // match api_key prefix
	StripModelPrefix  bool     // strip "provider/" before sending
}

// Label returns a display label.
func (s *ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Name
}

// Providers is the registry. Order = priority. Gateways first.
var Providers = []*ProviderSpec{
	{
		Name: "openrouter", Keywords: []string{"openrouter"},
		EnvKey: "OPENROUTER_API_KEY", DisplayName: "OpenRouter",
		DefaultBaseURL: "https://openrouter.ai/api/v1",
		IsGateway:      true, DetectByKeyPrefix: "sk-or-",
	},
	{
		Name: "ollama", Keywords: []string{"ollama"},
		EnvKey: "OLLAMA_API_KEY", DisplayName: "Ollama",
		DefaultBaseURL: "http://localhost:11434/v1",
		IsLocal:        true, StripModelPrefix: true,
	},
	{
		Name: "openai", Keywords: []string{"openai", "gpt"},
		EnvKey: "OPENAI_API_KEY", DisplayName: "OpenAI",
		StripModelPrefix: true,
	},
	{
		Name: "deepseek", Keywords: []string{"deepseek"},
		EnvKey: "DEEPSEEK_API_KEY", DisplayName: "DeepSeek",
		DefaultBaseURL:   "https://api.deepseek.com/v1",
		StripModelPrefix: true,
	},
	{
		Name: "mistral", Keywords: []string{"mistral", "codestral"},
		EnvKey: "MISTRAL_API_KEY", DisplayName: "Mistral",
		DefaultBaseURL:   "https://api.mistral.ai/v1",
		StripModelPrefix: true,
	},
}

// FindByModel returns a standard provider spec matching a model name keyword.
// Skips gateways and local providers.
func FindByModel(model string) *ProviderSpec {
	lower := strings.ToLower(model)
	for _, spec := range Providers {
		if spec.IsGateway || spec.IsLocal {
			continue
		}
		for _, kw := range spec.Keywords {
			if strings.Contains(lower, kw) {
				return spec
			}
		}
	}
	return nil
}

// FindByName finds a provider spec by config name.
func FindByName(name string) *ProviderSpec {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, spec := range Providers {
		if spec.Name == name {
			return spec
		}
	}
	return nil
}

// FindByKeyPrefix detects a gateway from the shape of its API key.
func FindByKeyPrefix(apiKey string) *ProviderSpec {
	if apiKey == "" {
		return nil
	}
	for _, spec := range Providers {
		if spec.DetectByKeyPrefix != "" && strings.HasPrefix(apiKey, spec.DetectByKeyPrefix) {
			return spec
		}
	}
	return nil
}
