package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAI talks to any OpenAI-compatible endpoint (OpenAI, OpenRouter, vLLM).
type OpenAI struct {
	client *openaigo.Client
	cfg    apiConfig
	s      Settings
	log    *zap.Logger
}

func NewOpenAI(s Settings, model string, log *zap.Logger) (*OpenAI, error) {
	cfg, err := resolveAPIConfig(s, model)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	oc := openaigo.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.OrgID = cfg.Organization
	oc.HTTPClient = &http.Client{
		Timeout:   s.Timeout,
		Transport: &headerTransport{cfg: cfg, base: http.DefaultTransport},
	}
	log.Info("openai client ready",
		zap.String("provider", cfg.Kind.String()),
		zap.String("base_url", cfg.BaseURL),
		zap.String("model", cfg.Model),
		zap.String("mode", string(s.Mode)),
	)
	return &OpenAI{client: openaigo.NewClientWithConfig(oc), cfg: cfg, s: s, log: log}, nil
}

func (c *OpenAI) Model() string { return c.cfg.Model }

func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	observePrompt(c.cfg.Model, prompt)

	var (
		text string
		err  error
	)
	if c.s.Mode == ModeChat {
		text, err = c.chat(ctx, prompt)
	} else {
		text, err = c.complete(ctx, prompt)
	}
	observeRequest(c.cfg.Kind.String(), c.cfg.Model, start, err)
	if err != nil {
		c.log.Warn("openai request failed", zap.String("model", c.cfg.Model), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return text, nil
}

func (c *OpenAI) chat(ctx context.Context, prompt string) (string, error) {
	req := openaigo.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openaigo.ChatCompletionMessage{
			{Role: openaigo.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: c.s.MaxTokens,
		Seed:      c.s.Seed,
	}
	if c.s.Temperature != nil {
		req.Temperature = *c.s.Temperature
	}
	if c.s.TopP != nil {
		req.TopP = *c.s.TopP
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	// Chat replies never echo the prompt; re-add the cue so Interpret sees
	// the answer in the same position as a completion.
	return "A: " + resp.Choices[0].Message.Content, nil
}

func (c *OpenAI) complete(ctx context.Context, prompt string) (string, error) {
	req := openaigo.CompletionRequest{
		Model:     c.cfg.Model,
		Prompt:    prompt,
		MaxTokens: c.s.MaxTokens,
		Echo:      true,
	}
	if c.s.Temperature != nil {
		req.Temperature = *c.s.Temperature
	}
	if c.s.TopP != nil {
		req.TopP = *c.s.TopP
	}
	if c.s.Seed != nil {
		req.Seed = c.s.Seed
	}
	resp, err := c.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	text := resp.Choices[0].Text
	if !strings.HasPrefix(text, prompt) {
		// Some compatible servers ignore echo.
		text = prompt + text
	}
	return text, nil
}

// headerTransport applies the configured auth header and provider headers.
// go-openai always sets "Authorization: Bearer"; a custom header name
// replaces it.
type headerTransport struct {
	cfg  apiConfig
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.cfg.HeaderName != "Authorization" {
		r.Header.Del("Authorization")
	}
	setHeaderPreserveCase(r.Header, t.cfg.HeaderName, t.cfg.HeaderPrefix+t.cfg.APIKey)
	for k, v := range t.cfg.ExtraHeaders {
		setHeaderPreserveCase(r.Header, k, v)
	}
	return t.base.RoundTrip(r)
}

// setHeaderPreserveCase writes non-canonical keys such as "HTTP-Referer"
// verbatim; blank keys or values are skipped.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if http.CanonicalHeaderKey(key) == key {
		h.Set(key, value)
		return
	}
	delete(h, http.CanonicalHeaderKey(key))
	h[key] = []string{value}
}
