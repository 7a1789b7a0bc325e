package agent

import (
	"context"

	"coop-arena/server/engine"
)

// Generator is the only thing the game needs from a language model: prompt in,
// free text out. Implementations live in server/llm; tests use GeneratorFunc.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Resolution is what one player produced for one round.
type Resolution struct {
	Move     engine.Move
	OK       bool     // false: retry budget exhausted, the player is unresponsive
	Attempts int      // generator calls made
	Raw      []string // completions in call order
	Err      error    // last generator error, if any
}
