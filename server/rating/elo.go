// Package rating turns per-game point totals into Elo and Glicko-2 ratings.
package rating

import "math"

// Elo holds the two ratings of one pairing.
type Elo struct {
	A, B  float64
	K     float64 // base K
	Games int     // games already applied to this pairing
}

func NewElo(start, k float64) Elo { return Elo{A: start, B: start, K: k} }

func (e Elo) expect() (ea, eb float64) {
	ea = 1.0 / (1.0 + math.Pow(10, (e.B-e.A)/400.0))
	return ea, 1.0 - ea
}

// UpdateGame applies one game. sA is A's score in [0,1] (see ScoreShare);
// margin is |pointsA-pointsB| divided by the most either side could have
// scored, and tempers K so lopsided games move ratings more.
func (e *Elo) UpdateGame(sA, margin float64) (dA, dB float64) {
	ea, eb := e.expect()
	sA = clamp(sA, 0, 1)
	kEff := e.K * marginScale(margin) * decay(e.Games)
	dA = kEff * (sA - ea)
	dB = kEff * ((1 - sA) - eb)
	e.A += dA
	e.B += dB
	e.Games++
	return dA, dB
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func marginScale(m float64) float64 {
	return 1.0 + 0.35*math.Tanh(4*clamp(m, 0, 1)) // ≤ ~1.35
}

func decay(games int) float64 {
	return 1.0 / (1.0 + 0.01*float64(games))
}
