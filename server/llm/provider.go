package llm

import (
	"errors"
	"os"
	"strings"
)

type providerKind int

const (
	providerOpenAI providerKind = iota
	providerOpenRouter
	providerOllama
)

func (k providerKind) String() string {
	switch k {
	case providerOpenRouter:
		return "openrouter"
	case providerOllama:
		return "ollama"
	}
	return "openai"
}

const (
	defaultTitle      = "coop-arena"
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterPrefix  = "openrouter/"
)

// apiConfig is one model's view of an OpenAI-compatible endpoint.
type apiConfig struct {
	Kind         providerKind
	APIKey       string
	Model        string
	BaseURL      string
	HeaderName   string
	HeaderPrefix string
	Organization string
	ExtraHeaders map[string]string
}

// resolveAPIConfig turns Settings into a per-model endpoint config. A model
// tag starting with "openrouter/" or a base URL on openrouter.ai routes the
// model through OpenRouter even when LLM_PROVIDER says openai.
func resolveAPIConfig(s Settings, model string) (apiConfig, error) {
	cfg := apiConfig{
		Model:        strings.TrimSpace(model),
		BaseURL:      strings.TrimRight(strings.TrimSpace(s.BaseURL), "/"),
		Organization: strings.TrimSpace(s.Organization),
		ExtraHeaders: map[string]string{},
	}
	if cfg.Model == "" {
		return apiConfig{}, errors.New("model missing: set it in the sweep plan")
	}

	switch {
	case strings.EqualFold(s.Provider, "openrouter"),
		strings.HasPrefix(strings.ToLower(cfg.Model), openRouterPrefix),
		strings.Contains(strings.ToLower(cfg.BaseURL), "openrouter"):
		cfg.Kind = providerOpenRouter
	default:
		cfg.Kind = providerOpenAI
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
		if cfg.Kind == providerOpenRouter {
			cfg.BaseURL = openRouterBaseURL
		}
	}

	cfg.APIKey = strings.TrimSpace(s.APIKey)
	if cfg.APIKey == "" {
		vendor := []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"}
		if cfg.Kind == providerOpenRouter {
			vendor[0], vendor[1] = vendor[1], vendor[0]
		}
		cfg.APIKey = firstNonEmpty(os.Getenv(vendor[0]), os.Getenv(vendor[1]))
	}
	if cfg.APIKey == "" {
		return apiConfig{}, errors.New("API key missing: set LLM_API_KEY, OPENAI_API_KEY or OPENROUTER_API_KEY")
	}

	cfg.HeaderName = firstNonEmpty(s.KeyHeader, "Authorization")
	cfg.HeaderPrefix = s.KeyPrefix
	if cfg.HeaderName == "Authorization" && strings.TrimSpace(cfg.HeaderPrefix) == "" {
		cfg.HeaderPrefix = "Bearer "
	}

	if cfg.Kind == providerOpenRouter {
		if site := strings.TrimSpace(s.SiteURL); site != "" {
			cfg.ExtraHeaders["HTTP-Referer"] = site
			cfg.ExtraHeaders["Referer"] = site
		}
		cfg.ExtraHeaders["X-Title"] = firstNonEmpty(s.Title, defaultTitle)
		if strings.HasPrefix(strings.ToLower(cfg.Model), openRouterPrefix) {
			cfg.Model = cfg.Model[len(openRouterPrefix):]
		}
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
