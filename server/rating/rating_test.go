package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Worked example from Glickman's Glicko-2 paper.
func TestGlicko2PaperExample(t *testing.T) {
	p := NewGlicko2With(1500, 200, 0.06)
	p.UpdateBatch([]OpponentResult{
		{Opp: NewGlicko2With(1400, 30, 0.06), S: 1},
		{Opp: NewGlicko2With(1550, 100, 0.06), S: 0},
		{Opp: NewGlicko2With(1700, 300, 0.06), S: 0},
	}, 0.5)
	assert.InDelta(t, 1464.06, p.Rating, 0.05)
	assert.InDelta(t, 151.52, p.RD, 0.05)
	assert.InDelta(t, 0.05999, p.Volatility, 0.0001)
	assert.Equal(t, 1, p.Games)
}

func TestGlicko2RDShrinksWithGames(t *testing.T) {
	a, b := NewGlicko2(), NewGlicko2()
	prev := a.RD
	for i := 0; i < 5; i++ {
		snap := b.Copy()
		b.UpdatePair(a.Copy(), 0, 0.5)
		a.UpdatePair(snap, 1, 0.5)
		assert.Less(t, a.RD, prev)
		prev = a.RD
	}
	assert.Greater(t, a.Rating, 1500.0)
	assert.Less(t, b.Rating, 1500.0)
}

func TestGlicko2AgeWidensRD(t *testing.T) {
	p := NewGlicko2With(1600, 100, 0.06)
	p.UpdateBatch(nil, 0.5)
	assert.Equal(t, 1600.0, p.Rating)
	assert.Greater(t, p.RD, 100.0)
}

func TestEloSymmetric(t *testing.T) {
	e := NewElo(1500, 24)
	dA, dB := e.UpdateGame(1, 1)
	assert.Greater(t, dA, 0.0)
	assert.InDelta(t, -dA, dB, 1e-9)
	assert.InDelta(t, 3000, e.A+e.B, 1e-9)

	even := NewElo(1500, 24)
	dA, dB = even.UpdateGame(0.5, 0)
	assert.Zero(t, dA)
	assert.Zero(t, dB)
}

func TestEloMarginTempersK(t *testing.T) {
	narrow, wide := NewElo(1500, 24), NewElo(1500, 24)
	dClose, _ := narrow.UpdateGame(0.6, 0.05)
	dWide, _ := wide.UpdateGame(0.6, 0.9)
	assert.Greater(t, dWide, dClose)
}

func TestScoreShare(t *testing.T) {
	assert.Equal(t, 0.5, ScoreShare(0, 0))
	assert.Equal(t, 0.0, ScoreShare(0, 10))
	assert.InDelta(t, 0.75, ScoreShare(15, 5), 1e-12)
}

func TestUpdatePair(t *testing.T) {
	a, b := NewState(), NewState()
	a2, b2 := UpdatePair(a, b, 0, 25, 25, DefaultConfig())
	assert.Less(t, a2.Elo, 1500.0)
	assert.Greater(t, b2.Elo, 1500.0)
	assert.Less(t, a2.G.Rating, 1500.0)
	assert.Greater(t, b2.G.Rating, 1500.0)
	assert.Less(t, a2.G.RD, 350.0)
	assert.Equal(t, 1, a2.Games)
	assert.Equal(t, 1, b2.Games)
	// inputs are passed by value and stay unchanged
	assert.Equal(t, 1500.0, a.G.Rating)

	c, d := UpdatePair(a, b, 12, 12, 25, DefaultConfig())
	assert.InDelta(t, 1500, c.Elo, 1e-9)
	assert.InDelta(t, c.G.Rating, d.G.Rating, 1e-9)
}
