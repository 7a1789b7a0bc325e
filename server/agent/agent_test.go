package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"coop-arena/server/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pd = engine.PayoffMatrix{
	{{3, 3}, {0, 5}},
	{{5, 0}, {1, 1}},
}

func testConfig() engine.Config {
	return engine.Config{OptionJ: "Option J", OptionF: "Option F", Payoff: pd, Rounds: 5, MaxRetries: 2}
}

func TestInterpret(t *testing.T) {
	cases := []struct {
		raw  string
		move engine.Move
		ok   bool
	}{
		{"...\nA: Option J", engine.Cooperate, true},
		{"A: f", engine.Defect, true},
		{"A: maybe", engine.Cooperate, false},
		{"A: Option F.", engine.Defect, true},
		{"A:   option   j, definitely", engine.Cooperate, true},
		{"Q: Which?\nA: J\nQ: again\nA: F", engine.Defect, true},
		{"J", engine.Cooperate, true},
		{"A: jump", engine.Cooperate, false},
		{"A: fine", engine.Cooperate, false},
		{"A: I pick Option J", engine.Cooperate, false},
		{"A: option jf", engine.Cooperate, false},
		{"", engine.Cooperate, false},
		{"A:", engine.Cooperate, false},
	}
	for _, tc := range cases {
		m, ok := Interpret(tc.raw, "Option J", "Option F")
		assert.Equal(t, tc.ok, ok, "raw=%q", tc.raw)
		if tc.ok {
			assert.Equal(t, tc.move, m, "raw=%q", tc.raw)
		}
	}
}

func TestInterpretIgnoresDisplayLabels(t *testing.T) {
	m, ok := Interpret("A: Option J", "Blue", "Red")
	require.True(t, ok)
	assert.Equal(t, engine.Cooperate, m)

	_, ok = Interpret("A: Blue", "Blue", "Red")
	assert.False(t, ok)
}

func TestInterpretIsPure(t *testing.T) {
	raw := "blah\nA: Option F"
	m1, ok1 := Interpret(raw, "Option J", "Option F")
	m2, ok2 := Interpret(raw, "Option J", "Option F")
	assert.Equal(t, m1, m2)
	assert.Equal(t, ok1, ok2)
}

func TestComposeFirstRound(t *testing.T) {
	cfg := testConfig()
	p := Compose(nil, engine.P1, cfg, false)

	assert.True(t, strings.HasPrefix(p, "You are playing a game repeatedly with another player."))
	assert.Contains(t, p, "You will play 5 rounds in total")
	assert.Contains(t, p, "If you choose Option J and the other player chooses Option F, then you win 0 points and the other player wins 5 points.")
	assert.Contains(t, p, "If you choose Option F and the other player chooses Option J, then you win 5 points and the other player wins 0 points.")
	assert.Contains(t, p, "You are currently playing round 1.")
	assert.NotContains(t, p, "make mistakes")
	assert.NotContains(t, p, "In round")
	assert.True(t, strings.HasSuffix(p, AnswerCue))

	noisy := Compose(nil, engine.P1, cfg, true)
	assert.Contains(t, noisy, "Be aware that the other player can make mistakes.")
	assert.Equal(t, p, Compose(nil, engine.P1, cfg, false))
}

func TestComposeHistoryFromEachSeat(t *testing.T) {
	cfg := testConfig()
	h := engine.History{{P1: engine.Cooperate, P2: engine.Defect}, {P1: engine.Defect, P2: engine.Defect}}

	p1 := Compose(h, engine.P1, cfg, false)
	assert.Contains(t, p1, "In round 1, you chose Option J and the other player chose Option F. Thus, you won 0 points and the other player won 5 points.")
	assert.Contains(t, p1, "In round 2, you chose Option F and the other player chose Option F. Thus, you won 1 points and the other player won 1 points.")
	assert.Contains(t, p1, "You are currently playing round 3.")

	p2 := Compose(h, engine.P2, cfg, false)
	assert.Contains(t, p2, "In round 1, you chose Option F and the other player chose Option J. Thus, you won 5 points and the other player won 0 points.")
	assert.NotContains(t, p2, "In round 3")
}

func TestComposeAsymmetricRules(t *testing.T) {
	cfg := testConfig()
	cfg.Payoff = engine.PayoffMatrix{
		{{4, 4}, {1, 3}},
		{{1, 1}, {2, 2}},
	}
	p2 := Compose(nil, engine.P2, cfg, false)
	assert.Contains(t, p2, "If you choose Option F and the other player chooses Option J, then you win 3 points and the other player wins 1 points.")
	assert.Contains(t, p2, "If you choose Option J and the other player chooses Option F, then you win 1 points and the other player wins 1 points.")
}

type scripted struct {
	answers []string
	calls   int
	prompts []string
}

func (s *scripted) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	a := s.answers[len(s.answers)-1]
	if s.calls < len(s.answers) {
		a = s.answers[s.calls]
	}
	s.calls++
	return a, nil
}

func TestResolveRetryBound(t *testing.T) {
	gen := &scripted{answers: []string{"I refuse"}}
	res := Resolver{}.Resolve(context.Background(), gen, "base\nA:", testConfig())
	assert.False(t, res.OK)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Raw, 3)

	cfg := testConfig()
	cfg.MaxRetries = 0
	gen = &scripted{answers: []string{"nope"}}
	res = Resolver{}.Resolve(context.Background(), gen, "base\nA:", cfg)
	assert.False(t, res.OK)
	assert.Equal(t, 1, gen.calls)
}

func TestResolveRecoversOnRetry(t *testing.T) {
	gen := &scripted{answers: []string{"hmm", "Option F"}}
	res := Resolver{}.Resolve(context.Background(), gen, "base\nA:", testConfig())
	require.True(t, res.OK)
	assert.Equal(t, engine.Defect, res.Move)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, gen.prompts[1], "Invalid answer. Please answer exactly either 'Option J' or 'Option F'.")
	assert.True(t, strings.HasSuffix(gen.prompts[1], AnswerCue))
}

func TestResolvePromptGrowth(t *testing.T) {
	gen := &scripted{answers: []string{"?"}}
	Resolver{Strategy: RetryAppend}.Resolve(context.Background(), gen, "base\nA:", testConfig())
	require.Len(t, gen.prompts, 3)
	assert.Equal(t, 2, strings.Count(gen.prompts[2], "Invalid answer."))

	gen = &scripted{answers: []string{"?"}}
	Resolver{Strategy: RetryFresh}.Resolve(context.Background(), gen, "base\nA:", testConfig())
	require.Len(t, gen.prompts, 3)
	assert.Equal(t, 1, strings.Count(gen.prompts[2], "Invalid answer."))
	assert.Equal(t, gen.prompts[1], gen.prompts[2])
}

func TestResolveGeneratorErrorsUseAttempts(t *testing.T) {
	calls := 0
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("upstream 503")
		}
		return "A: J", nil
	})
	res := Resolver{}.Resolve(context.Background(), gen, "p", testConfig())
	require.True(t, res.OK)
	assert.Equal(t, engine.Cooperate, res.Move)
	assert.Equal(t, 3, calls)
}

func TestResolveCancelledContextFailsClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "Option J", nil
	})
	res := Resolver{}.Resolve(ctx, gen, "p", testConfig())
	assert.False(t, res.OK)
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, RetryAppend, s)
	s, err = ParseStrategy("fresh")
	require.NoError(t, err)
	assert.Equal(t, RetryFresh, s)
	_, err = ParseStrategy("exponential")
	assert.Error(t, err)
}
