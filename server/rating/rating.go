package rating

// ScoreShare maps point totals to a result in [0,1]: own/(own+opp), or 0.5
// when nobody scored.
func ScoreShare(own, opp int) float64 {
	if own+opp <= 0 {
		return 0.5
	}
	return float64(own) / float64(own+opp)
}

type Config struct {
	EloK float64
	Tau  float64
}

func DefaultConfig() Config { return Config{EloK: 24, Tau: 0.5} }

// State is one model's standing.
type State struct {
	Elo   float64
	G     Glicko2
	Games int
}

func NewState() State { return State{Elo: 1500, G: *NewGlicko2()} }

// UpdatePair applies one finished game between a and b. maxPoints is the
// most one side could score in the game and normalizes the margin.
func UpdatePair(a, b State, pointsA, pointsB, maxPoints int, cfg Config) (State, State) {
	sA := ScoreShare(pointsA, pointsB)
	margin := 0.0
	if maxPoints > 0 {
		d := pointsA - pointsB
		if d < 0 {
			d = -d
		}
		margin = float64(d) / float64(maxPoints)
	}

	games := a.Games
	if b.Games < games {
		games = b.Games
	}
	e := Elo{A: a.Elo, B: b.Elo, K: cfg.EloK, Games: games}
	e.UpdateGame(sA, margin)

	// Both sides see the opponent as it was before this game.
	gA, gB := a.G.Copy(), b.G.Copy()
	gA.UpdatePair(b.G.Copy(), sA, cfg.Tau)
	gB.UpdatePair(a.G.Copy(), 1-sA, cfg.Tau)

	a.Elo, b.Elo = e.A, e.B
	a.G, b.G = *gA, *gB
	a.Games++
	b.Games++
	return a, b
}
