package analysis

import (
	"math/rand"
	"testing"

	"coop-arena/server/engine"
	"coop-arena/server/judge"
	"coop-arena/server/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var winWin = engine.PayoffMatrix{
	{{1, 1}, {4, 4}},
	{{1, 1}, {2, 2}},
}

func game(status engine.Status, moves engine.History) store.GameRecord {
	p := store.Player{Model: "pythia-70m-deduped", Checkpoint: "step1000"}
	s1, s2 := engine.Tally(winWin, moves)
	return store.GameRecord{
		P1: p, P2: p, Family: "Win-win", Noise: 0,
		OptionJ: "Option J", OptionF: "Option F",
		Payoff: winWin, Rounds: 2, Status: status,
		CompletedRounds: len(moves), Moves: moves, Intended: moves,
		ScoreP1: s1, ScoreP2: s2,
	}
}

func TestEfficiency(t *testing.T) {
	best := game(engine.Completed, engine.History{{P1: engine.Cooperate, P2: engine.Defect}, {P1: engine.Cooperate, P2: engine.Defect}})
	assert.InDelta(t, 1.0, Efficiency(best), 1e-12)

	worst := game(engine.Completed, engine.History{{P1: engine.Cooperate, P2: engine.Cooperate}, {P1: engine.Defect, P2: engine.Cooperate}})
	assert.InDelta(t, 0.25, Efficiency(worst), 1e-12)

	assert.Zero(t, Efficiency(store.GameRecord{}))
}

func TestSummarize(t *testing.T) {
	cd := engine.Round{P1: engine.Cooperate, P2: engine.Defect}
	dd := engine.Round{P1: engine.Defect, P2: engine.Defect}
	games := []store.GameRecord{
		game(engine.Completed, engine.History{cd, cd}),
		game(engine.Completed, engine.History{dd, dd}),
		game(engine.Aborted, engine.History{cd}),
	}
	other := game(engine.Completed, engine.History{dd, dd})
	other.Family = "Biased"
	games = append(games, other)

	out := Summarize(games, Options{Bootstrap: 200, Rng: rand.New(rand.NewSource(9))})
	require.Len(t, out, 2)
	assert.Equal(t, "Biased", out[0].Family)

	s := out[1]
	assert.Equal(t, "pythia-70m-deduped:step1000", s.Model)
	assert.Equal(t, 3, s.Games)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Aborted)
	assert.InDelta(t, 1.0/3, s.AbortRate, 1e-12)
	// 1.0 and 0.5
	assert.InDelta(t, 0.75, s.Efficiency, 1e-12)
	assert.LessOrEqual(t, s.EfficiencyCI[0], s.Efficiency)
	assert.GreaterOrEqual(t, s.EfficiencyCI[1], s.Efficiency)
	// intended moves: cd,cd | dd,dd | cd -> 3 C out of 10
	assert.InDelta(t, 0.3, s.Cooperation, 1e-12)
	assert.Less(t, s.CooperationCI[0], 0.3)
	assert.Greater(t, s.CooperationCI[1], 0.3)
	assert.Equal(t, 1, s.Strategies[judge.AlwaysCooperate])
	assert.Equal(t, 3, s.Strategies[judge.AlwaysDefect])
	assert.InDelta(t, 6.0, s.MeanScore, 1e-12)
	assert.InDelta(t, 6.0, s.MeanOpponentScore, 1e-12)
}

func TestSummarizeCrossPlayCreditsEachSeat(t *testing.T) {
	pd := engine.PayoffMatrix{
		{{3, 3}, {0, 5}},
		{{5, 0}, {1, 1}},
	}
	cd := engine.Round{P1: engine.Cooperate, P2: engine.Defect}
	moves := engine.History{cd, cd}
	g := store.GameRecord{
		P1: store.Player{Model: "a"}, P2: store.Player{Model: "b"},
		Family: "PD", Payoff: pd, Rounds: 2, Status: engine.Completed,
		CompletedRounds: 2, Moves: moves, Intended: moves, ScoreP1: 0, ScoreP2: 10,
	}

	out := Summarize([]store.GameRecord{g}, Options{Bootstrap: 50})
	require.Len(t, out, 2)
	a, b := out[0], out[1]
	require.Equal(t, "a", a.Model)
	require.Equal(t, "b", b.Model)

	assert.Equal(t, 1, a.Games)
	assert.Equal(t, 1, b.Games)
	assert.InDelta(t, 1.0, a.Cooperation, 1e-12)
	assert.InDelta(t, 0.0, b.Cooperation, 1e-12)
	assert.Equal(t, map[judge.Strategy]int{judge.AlwaysCooperate: 1}, a.Strategies)
	assert.Equal(t, map[judge.Strategy]int{judge.AlwaysDefect: 1}, b.Strategies)
	assert.InDelta(t, 0.0, a.MeanScore, 1e-12)
	assert.InDelta(t, 10.0, a.MeanOpponentScore, 1e-12)
	assert.InDelta(t, 10.0, b.MeanScore, 1e-12)
	// 10 of a possible 2*6
	assert.InDelta(t, 10.0/12, a.Efficiency, 1e-12)
	assert.InDelta(t, a.Efficiency, b.Efficiency, 1e-12)
}

func TestWilsonCI95(t *testing.T) {
	lo, hi := WilsonCI95(0, 0, 0)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	lo, hi = WilsonCI95(50, 0, 100)
	assert.InDelta(t, 0.404, lo, 0.001)
	assert.InDelta(t, 0.596, hi, 0.001)

	lo2, hi2 := WilsonCI95(40, 20, 100)
	assert.InDelta(t, lo, lo2, 1e-12)
	assert.InDelta(t, hi, hi2, 1e-12)
}

func TestBootstrapCI95(t *testing.T) {
	lo, hi := BootstrapCI95(nil, 100, nil)
	assert.Zero(t, lo)
	assert.Zero(t, hi)

	vals := []float64{1, 1, 1, 1}
	lo, hi = BootstrapCI95(vals, 100, nil)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 1.0, hi)

	a1, b1 := BootstrapCI95([]float64{0, 1, 0.5, 0.25}, 500, nil)
	a2, b2 := BootstrapCI95([]float64{0, 1, 0.5, 0.25}, 500, nil)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.Less(t, a1, b1)
}
