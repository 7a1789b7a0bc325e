package judge

import (
	"testing"

	"coop-arena/server/engine"

	"github.com/stretchr/testify/assert"
)

const (
	C = engine.Cooperate
	D = engine.Defect
)

var pd = engine.PayoffMatrix{
	{{3, 3}, {0, 5}},
	{{5, 0}, {1, 1}},
}

func hist(p1, p2 []engine.Move) engine.History {
	h := make(engine.History, len(p1))
	for i := range p1 {
		h[i] = engine.Round{P1: p1[i], P2: p2[i]}
	}
	return h
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		own  []engine.Move
		opp  []engine.Move
		want Strategy
	}{
		{"empty", nil, nil, Unknown},
		{"all C", []engine.Move{C, C, C}, []engine.Move{D, D, C}, AlwaysCooperate},
		{"all D", []engine.Move{D, D}, []engine.Move{C, C}, AlwaysDefect},
		{"tft", []engine.Move{C, D, C, D}, []engine.Move{D, C, D, C}, TitForTat},
		{"grim", []engine.Move{C, C, D, D}, []engine.Move{C, D, C, C}, GrimTrigger},
		{"mixed", []engine.Move{D, C, D}, []engine.Move{C, C, C}, Mixed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.own, tc.opp))
		})
	}
}

func TestEvaluatePrisonersDilemma(t *testing.T) {
	h := hist([]engine.Move{C, C, D}, []engine.Move{D, D, D})
	rep := Evaluate(pd, h, h)

	// Defecting is dominant: P1's two cooperations each cost 1 point.
	assert.Equal(t, 3, rep.P1.Rounds)
	assert.Equal(t, 2, rep.P1.Cooperations)
	assert.Equal(t, 1, rep.P1.BestResponses)
	assert.Equal(t, 2, rep.P1.Regret)
	assert.Equal(t, Mixed, rep.P1.Strategy)

	assert.Equal(t, 3, rep.P2.BestResponses)
	assert.Equal(t, 0, rep.P2.Regret)
	assert.Equal(t, AlwaysDefect, rep.P2.Strategy)
	assert.InDelta(t, 1.0, rep.P2.Accuracy(), 1e-12)
}

func TestEvaluateUsesSeatPerspective(t *testing.T) {
	unfair := engine.PayoffMatrix{
		{{4, 4}, {1, 3}},
		{{1, 1}, {2, 2}},
	}
	// P2 defects against a cooperator: 3 points versus 4 for cooperating.
	h := hist([]engine.Move{C}, []engine.Move{D})
	rep := Evaluate(unfair, h, h)
	assert.Equal(t, 0, rep.P2.BestResponses)
	assert.Equal(t, 1, rep.P2.Regret)
}

func TestEvaluateNoiseJudgesIntent(t *testing.T) {
	intended := hist([]engine.Move{C, D}, []engine.Move{C, C})
	played := hist([]engine.Move{C, D}, []engine.Move{D, C})
	rep := Evaluate(pd, intended, played)
	// P1 responded to an observed defection in round 1.
	assert.Equal(t, TitForTat, rep.P1.Strategy)
	assert.Equal(t, AlwaysCooperate, rep.P2.Strategy)
}
