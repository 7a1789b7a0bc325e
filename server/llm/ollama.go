package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// Ollama serves local base checkpoints. Completion mode uses the raw generate
// endpoint so no chat template is wrapped around the prompt.
type Ollama struct {
	client *api.Client
	model  string
	s      Settings
	log    *zap.Logger
}

func NewOllama(s Settings, model string, log *zap.Logger) (*Ollama, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("ollama: model missing")
	}
	if log == nil {
		log = zap.NewNop()
	}
	base := strings.TrimSuffix(strings.TrimSuffix(s.OllamaURL, "/"), "/v1")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base url %q: %w", base, err)
	}
	// No client timeout: pulls stream for minutes. Generate bounds itself with s.Timeout.
	client := api.NewClient(u, &http.Client{})
	return &Ollama{client: client, model: model, s: s, log: log}, nil
}

func (o *Ollama) Model() string { return o.model }

func (o *Ollama) options() map[string]any {
	opts := map[string]any{}
	if o.s.MaxTokens > 0 {
		opts["num_predict"] = o.s.MaxTokens
	}
	if o.s.Temperature != nil {
		opts["temperature"] = *o.s.Temperature
	}
	if o.s.TopP != nil {
		opts["top_p"] = *o.s.TopP
	}
	if o.s.Seed != nil {
		opts["seed"] = *o.s.Seed
	}
	return opts
}

func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	if o.s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.s.Timeout)
		defer cancel()
	}
	start := time.Now()
	observePrompt(o.model, prompt)

	stream := false
	var (
		text string
		err  error
	)
	if o.s.Mode == ModeChat {
		req := &api.ChatRequest{
			Model:    o.model,
			Messages: []api.Message{{Role: "user", Content: prompt}},
			Stream:   &stream,
			Options:  o.options(),
		}
		var b strings.Builder
		err = o.client.Chat(ctx, req, func(r api.ChatResponse) error {
			b.WriteString(r.Message.Content)
			return nil
		})
		text = "A: " + b.String()
	} else {
		req := &api.GenerateRequest{
			Model:   o.model,
			Prompt:  prompt,
			Raw:     true,
			Stream:  &stream,
			Options: o.options(),
		}
		var b strings.Builder
		b.WriteString(prompt)
		err = o.client.Generate(ctx, req, func(r api.GenerateResponse) error {
			b.WriteString(r.Response)
			return nil
		})
		text = b.String()
	}
	observeRequest(providerOllama.String(), o.model, start, err)
	if err != nil {
		o.log.Warn("ollama request failed", zap.String("model", o.model), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return text, nil
}

// Pull downloads the model into the local registry ahead of a sweep.
func (o *Ollama) Pull(ctx context.Context) error {
	last := ""
	req := &api.PullRequest{Model: o.model}
	err := o.client.Pull(ctx, req, func(p api.ProgressResponse) error {
		if p.Status != last {
			o.log.Info("pull", zap.String("model", o.model), zap.String("status", p.Status))
			last = p.Status
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ollama pull %s: %w", o.model, err)
	}
	return nil
}
