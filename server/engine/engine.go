package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const DefaultMaxRetries = 2

var (
	ErrInvalidConfig = errors.New("invalid game configuration")
	ErrGameOver      = errors.New("game is over")
)

type Config struct {
	OptionJ    string       `json:"option_j" yaml:"option_j"`
	OptionF    string       `json:"option_f" yaml:"option_f"`
	Payoff     PayoffMatrix `json:"payoff_matrix" yaml:"-"`
	Rounds     int          `json:"n_rounds" yaml:"n_rounds"`
	Noise      float64      `json:"noise" yaml:"noise"`
	MaxRetries int          `json:"max_retry_attempts" yaml:"max_retry_attempts"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OptionJ) == "" || strings.TrimSpace(c.OptionF) == "" {
		return fmt.Errorf("%w: both option labels are required", ErrInvalidConfig)
	}
	if c.OptionJ == c.OptionF {
		return fmt.Errorf("%w: option labels must differ (both %q)", ErrInvalidConfig, c.OptionJ)
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("%w: n_rounds must be positive, got %d", ErrInvalidConfig, c.Rounds)
	}
	if math.IsNaN(c.Noise) || c.Noise < 0 || c.Noise > 1 {
		return fmt.Errorf("%w: noise must be in [0,1], got %v", ErrInvalidConfig, c.Noise)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retry_attempts must be >= 0, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	return nil
}

type Status string

const (
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Aborted    Status = "aborted"
)

// Outcome is the terminal result of a game. For aborted games History holds
// the rounds that did complete and the scores match that partial history.
type Outcome struct {
	Status          Status  `json:"status"`
	History         History `json:"history"`
	ScoreP1         int     `json:"score_p1"`
	ScoreP2         int     `json:"score_p2"`
	CompletedRounds int     `json:"completed_rounds"`
}

func (o Outcome) Completed() bool { return o.Status == Completed }

// Game is the per-game state machine. It starts at round 1 with empty history
// and zero scores and only moves forward.
type Game struct {
	cfg     Config
	history History
	scoreP1 int
	scoreP2 int
	status  Status
}

func NewGame(cfg Config) (*Game, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Game{
		cfg:     cfg,
		history: make(History, 0, cfg.Rounds),
		status:  InProgress,
	}, nil
}

// Config returns a copy of the settings the game was created with.
func (g *Game) Config() Config { return g.cfg }

// Round is the 1-based round currently being played.
func (g *Game) Round() int { return len(g.history) + 1 }

// History returns a copy; callers cannot mutate recorded rounds.
func (g *Game) History() History {
	out := make(History, len(g.history))
	copy(out, g.history)
	return out
}

func (g *Game) Status() Status { return g.status }
func (g *Game) Done() bool     { return g.status != InProgress }

func (g *Game) Scores() (int, int) { return g.scoreP1, g.scoreP2 }

// Apply scores the current round and advances; the last round completes the game.
func (g *Game) Apply(m1, m2 Move) error {
	if g.Done() {
		return ErrGameOver
	}
	s1, s2 := g.cfg.Payoff.Score(m1, m2)
	g.scoreP1 += s1
	g.scoreP2 += s2
	g.history = append(g.history, Round{P1: m1, P2: m2})
	if len(g.history) == g.cfg.Rounds {
		g.status = Completed
	}
	return nil
}

// Abort ends the game without counting the current round.
func (g *Game) Abort() {
	if g.Done() {
		return
	}
	g.status = Aborted
}

func (g *Game) Outcome() Outcome {
	return Outcome{
		Status:          g.status,
		History:         g.History(),
		ScoreP1:         g.scoreP1,
		ScoreP2:         g.scoreP2,
		CompletedRounds: len(g.history),
	}
}

// Tally recomputes both totals from a history.
func Tally(pm PayoffMatrix, h History) (int, int) {
	var a, b int
	for _, r := range h {
		s1, s2 := pm.Score(r.P1, r.P2)
		a += s1
		b += s2
	}
	return a, b
}
