// Package sweep runs a planned grid of games and persists every result so an
// interrupted run picks up where it stopped.
package sweep

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"coop-arena/server/agent"
	"coop-arena/server/engine"
	"coop-arena/server/store"

	"gopkg.in/yaml.v3"
)

//go:embed default_plan.yaml
var defaultPlan []byte

const (
	OpponentsSelf   = "self"
	OpponentsMatrix = "matrix"
)

type Model struct {
	Name   string `yaml:"name"`
	Params int64  `yaml:"params"`
}

type Checkpoint struct {
	Name  string `yaml:"name"`
	Steps int    `yaml:"steps"`
}

// Family is a named payoff matrix. Payoff rows are [JJ, JF], [FJ, FF].
type Family struct {
	Name   string    `yaml:"name"`
	Payoff [][][]int `yaml:"payoff"`

	matrix engine.PayoffMatrix
}

func (f Family) Matrix() engine.PayoffMatrix { return f.matrix }

type Plan struct {
	OptionJ     string       `yaml:"option_j"`
	OptionF     string       `yaml:"option_f"`
	Rounds      int          `yaml:"rounds"`
	Repetitions int          `yaml:"repetitions"`
	Opponents   string       `yaml:"opponents"`
	Retry       string       `yaml:"retry"`
	MaxRetries  *int         `yaml:"max_retries"`
	Parallel    bool         `yaml:"parallel"`
	NoiseNotice *bool        `yaml:"noise_notice"`
	Noise       []float64    `yaml:"noise"`
	Models      []Model      `yaml:"models"`
	Checkpoints []Checkpoint `yaml:"checkpoints"`
	Families    []Family     `yaml:"families"`

	strategy agent.Strategy
}

// DefaultPlan is the built-in self-play sweep.
func DefaultPlan() (Plan, error) { return ParsePlan(defaultPlan) }

// LoadPlan reads a plan file; an empty path yields DefaultPlan.
func LoadPlan(path string) (Plan, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPlan()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("sweep: read %s: %w", path, err)
	}
	p, err := ParsePlan(b)
	if err != nil {
		return Plan{}, fmt.Errorf("sweep: %s: %w", path, err)
	}
	return p, nil
}

// ParsePlan decodes and validates a plan.
func ParsePlan(b []byte) (Plan, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return Plan{}, fmt.Errorf("%w: plan is empty", engine.ErrInvalidConfig)
	}
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Plan{}, fmt.Errorf("%w: decode plan: %v", engine.ErrInvalidConfig, err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate fills defaults, parses every family and checks every game config
// the plan would produce. Nothing is played if this fails.
func (p *Plan) Validate() error {
	if p.Repetitions == 0 {
		p.Repetitions = 1
	}
	if p.Opponents == "" {
		p.Opponents = OpponentsSelf
	}
	if len(p.Noise) == 0 {
		p.Noise = []float64{0}
	}
	if p.MaxRetries == nil {
		n := engine.DefaultMaxRetries
		p.MaxRetries = &n
	}
	st, err := agent.ParseStrategy(p.Retry)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidConfig, err)
	}
	p.strategy = st

	switch p.Opponents {
	case OpponentsSelf, OpponentsMatrix:
	default:
		return fmt.Errorf("%w: opponents must be self or matrix, got %q", engine.ErrInvalidConfig, p.Opponents)
	}
	if p.Repetitions < 0 {
		return fmt.Errorf("%w: repetitions must be positive, got %d", engine.ErrInvalidConfig, p.Repetitions)
	}
	if len(p.Models) == 0 {
		return fmt.Errorf("%w: plan lists no models", engine.ErrInvalidConfig)
	}
	for i, m := range p.Models {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: model %d has no name", engine.ErrInvalidConfig, i)
		}
	}
	if p.Opponents == OpponentsMatrix && len(p.players()) < 2 {
		return fmt.Errorf("%w: matrix play needs at least two players", engine.ErrInvalidConfig)
	}
	if len(p.Families) == 0 {
		return fmt.Errorf("%w: plan lists no families", engine.ErrInvalidConfig)
	}
	seen := map[string]bool{}
	for i := range p.Families {
		f := &p.Families[i]
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: family %d has no name", engine.ErrInvalidConfig, i)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate family %q", engine.ErrInvalidConfig, f.Name)
		}
		seen[f.Name] = true
		m, err := engine.ParsePayoffMatrix(f.Payoff)
		if err != nil {
			return fmt.Errorf("family %q: %w", f.Name, err)
		}
		f.matrix = m
	}
	for _, f := range p.Families {
		for _, n := range p.Noise {
			if err := p.config(f, n).Validate(); err != nil {
				return fmt.Errorf("family %q noise %v: %w", f.Name, n, err)
			}
		}
	}
	return nil
}

func (p Plan) Strategy() agent.Strategy { return p.strategy }

func (p Plan) config(f Family, noise float64) engine.Config {
	return engine.Config{
		OptionJ:    p.OptionJ,
		OptionF:    p.OptionF,
		Payoff:     f.matrix,
		Rounds:     p.Rounds,
		Noise:      noise,
		MaxRetries: *p.MaxRetries,
	}
}

// players expands models by checkpoints. A plan without checkpoints plays
// each model as-is.
func (p Plan) players() []store.Player {
	var out []store.Player
	for _, m := range p.Models {
		if len(p.Checkpoints) == 0 {
			out = append(out, store.Player{Model: m.Name, Params: m.Params})
			continue
		}
		for _, c := range p.Checkpoints {
			out = append(out, store.Player{Model: m.Name, Params: m.Params, Checkpoint: c.Name, Steps: c.Steps})
		}
	}
	return out
}

// Job is one planned game.
type Job struct {
	P1, P2 store.Player
	Family string
	Noise  float64
	Rep    int
	Config engine.Config
}

func (j Job) Key() string { return store.GameKey(j.P1, j.P2, j.Family, j.Noise, j.Rep) }

// Jobs lists the plan in run order: pairing, then noise, then family, then
// repetition. Self play seats a player against itself; matrix play takes every
// unordered pair of distinct players once.
func (p Plan) Jobs() []Job {
	players := p.players()
	type pair struct{ a, b store.Player }
	var pairs []pair
	switch p.Opponents {
	case OpponentsMatrix:
		for i := range players {
			for j := i + 1; j < len(players); j++ {
				pairs = append(pairs, pair{players[i], players[j]})
			}
		}
	default:
		for _, pl := range players {
			pairs = append(pairs, pair{pl, pl})
		}
	}

	var jobs []Job
	for _, pr := range pairs {
		for _, n := range p.Noise {
			for _, f := range p.Families {
				for rep := 0; rep < p.Repetitions; rep++ {
					jobs = append(jobs, Job{
						P1: pr.a, P2: pr.b,
						Family: f.Name, Noise: n, Rep: rep,
						Config: p.config(f, n),
					})
				}
			}
		}
	}
	return jobs
}

// Tags lists each distinct model tag in the plan, in order.
func (p Plan) Tags() []string {
	var out []string
	for _, pl := range p.players() {
		out = append(out, pl.Tag())
	}
	return out
}
