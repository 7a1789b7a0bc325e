// Package llm adapts model backends to the prompt-in/text-out contract the
// game engine needs.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Puller is implemented by backends that can fetch weights ahead of use.
type Puller interface {
	Pull(ctx context.Context) error
}

// New builds the backend selected by s.Provider for one model tag.
func New(s Settings, model string, log *zap.Logger) (Client, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(s.Provider) {
	case "ollama":
		return NewOllama(s, model, log)
	case "openai", "openrouter":
		return NewOpenAI(s, model, log)
	}
	return nil, fmt.Errorf("unknown provider %q", s.Provider)
}
