package llm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrGenerationFailed = errors.New("llm generation failed")

// Mode selects the request shape. Base checkpoints only continue text, so
// completion mode sends the prompt verbatim; chat mode wraps it as a single
// user message.
type Mode string

const (
	ModeCompletion Mode = "completion"
	ModeChat       Mode = "chat"
)

// Settings is loaded by envconfig under the LLM_ prefix. An empty APIKey
// falls back to OPENAI_API_KEY or OPENROUTER_API_KEY.
type Settings struct {
	Provider  string `envconfig:"PROVIDER" default:"ollama"`
	Mode      Mode   `envconfig:"MODE" default:"completion"`
	BaseURL   string `envconfig:"BASE_URL"`
	APIKey    string `envconfig:"API_KEY"`
	KeyHeader string `envconfig:"KEY_HEADER" default:"Authorization"`
	// KeyPrefix defaults to "Bearer " when KeyHeader is Authorization.
	KeyPrefix    string `envconfig:"KEY_PREFIX"`
	Organization string `envconfig:"ORG"`
	// SiteURL and Title identify the app to OpenRouter's rankings.
	SiteURL string `envconfig:"SITE_URL"`
	Title   string `envconfig:"TITLE" default:"coop-arena"`

	OllamaURL   string        `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"60s"`
	MaxTokens   int           `envconfig:"MAX_TOKENS" default:"8"`
	Temperature *float32      `envconfig:"TEMPERATURE"`
	TopP        *float32      `envconfig:"TOP_P"`
	Seed        *int          `envconfig:"SEED"`
}

func (s Settings) Validate() error {
	switch strings.ToLower(s.Provider) {
	case "ollama", "openai", "openrouter":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want ollama|openai|openrouter)", s.Provider)
	}
	switch s.Mode {
	case ModeCompletion, ModeChat:
	default:
		return fmt.Errorf("unknown LLM_MODE %q (want completion|chat)", s.Mode)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be >= 0, got %d", s.MaxTokens)
	}
	return nil
}

// ModelTag joins a model name and an optional checkpoint the way local
// registries tag revisions ("pythia-70m-deduped:step3000").
func ModelTag(name, checkpoint string) string {
	name = strings.TrimSpace(name)
	checkpoint = strings.TrimSpace(checkpoint)
	if checkpoint == "" {
		return name
	}
	return name + ":" + checkpoint
}
