package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
}

func TestResolveAPIConfigOpenRouterDefaults(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "router-key")
	cfg, err := resolveAPIConfig(Settings{Provider: "openrouter"}, "EleutherAI/pythia-1b-deduped")
	require.NoError(t, err)
	assert.Equal(t, providerOpenRouter, cfg.Kind)
	assert.Equal(t, openRouterBaseURL, cfg.BaseURL)
	assert.Equal(t, "router-key", cfg.APIKey)
	assert.NotContains(t, cfg.ExtraHeaders, "HTTP-Referer")
	assert.Equal(t, defaultTitle, cfg.ExtraHeaders["X-Title"])
	assert.Equal(t, "Authorization", cfg.HeaderName)
	assert.Equal(t, "Bearer ", cfg.HeaderPrefix)
}

func TestResolveAPIConfigOpenRouterAttribution(t *testing.T) {
	clearProviderEnv(t)
	s := Settings{
		Provider: "openai",
		BaseURL:  "https://openrouter.ai/api/v1/",
		APIKey:   "k",
		SiteURL:  "https://example.com/app",
		Title:    "Custom Title",
	}
	cfg, err := resolveAPIConfig(s, "meta-llama/llama-3.1-70b-instruct")
	require.NoError(t, err)
	assert.Equal(t, providerOpenRouter, cfg.Kind)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.BaseURL)
	assert.Equal(t, "https://example.com/app", cfg.ExtraHeaders["HTTP-Referer"])
	assert.Equal(t, "https://example.com/app", cfg.ExtraHeaders["Referer"])
	assert.Equal(t, "Custom Title", cfg.ExtraHeaders["X-Title"])
}

func TestResolveAPIConfigOpenAI(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "router-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	cfg, err := resolveAPIConfig(Settings{Provider: "openai", Organization: " org-1 "}, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, providerOpenAI, cfg.Kind)
	assert.Equal(t, openAIBaseURL, cfg.BaseURL)
	assert.Equal(t, "openai-key", cfg.APIKey)
	assert.Equal(t, "org-1", cfg.Organization)
	assert.Empty(t, cfg.ExtraHeaders)

	cfg, err = resolveAPIConfig(Settings{Provider: "openai", APIKey: "explicit", BaseURL: "http://localhost:8000/v1/"}, "pythia")
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.APIKey)
	assert.Equal(t, "http://localhost:8000/v1", cfg.BaseURL)
}

func TestResolveAPIConfigModelPrefix(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := resolveAPIConfig(Settings{Provider: "openai", APIKey: "k"}, "openrouter/mistralai/mixtral")
	require.NoError(t, err)
	assert.Equal(t, providerOpenRouter, cfg.Kind)
	assert.Equal(t, openRouterBaseURL, cfg.BaseURL)
	assert.Equal(t, "mistralai/mixtral", cfg.Model)
}

func TestResolveAPIConfigCustomHeader(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := resolveAPIConfig(Settings{APIKey: "k", KeyHeader: "X-Api-Key"}, "m")
	require.NoError(t, err)
	assert.Equal(t, "X-Api-Key", cfg.HeaderName)
	assert.Empty(t, cfg.HeaderPrefix)
}

func TestResolveAPIConfigMissing(t *testing.T) {
	clearProviderEnv(t)
	_, err := resolveAPIConfig(Settings{APIKey: "k"}, " ")
	assert.Error(t, err)
	_, err = resolveAPIConfig(Settings{}, "gpt-4o-mini")
	assert.Error(t, err)
}
