// Package match drives one iterated game between two generators.
package match

import (
	"context"
	"math/rand"
	"time"

	"coop-arena/server/agent"
	"coop-arena/server/engine"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Resolver agent.Resolver
	// NoiseNotice overrides whether prompts disclose noise. Nil means
	// "disclose when cfg.Noise > 0".
	NoiseNotice *bool
	Rng         engine.Float64er
	// Parallel resolves both seats of a round concurrently. Both prompts only
	// depend on earlier rounds, so results are identical to sequential play.
	Parallel bool
	Log      *zap.Logger
	OnRound  func(RoundLog)
}

// RoundLog records how one round was produced. Intended is what the agent
// answered; Played is what the engine scored after noise.
type RoundLog struct {
	Round    int              `json:"round"`
	P1       agent.Resolution `json:"-"`
	P2       agent.Resolution `json:"-"`
	Intended engine.Round     `json:"intended"`
	Played   engine.Round     `json:"played"`
	Scores   [2]int           `json:"scores"`
	Elapsed  time.Duration    `json:"elapsed_ns"`
}

// Result is the terminal outcome plus per-round detail.
type Result struct {
	engine.Outcome
	Rounds []RoundLog `json:"rounds"`
	// Unresponsive names the seat that exhausted its retries, if any.
	Unresponsive engine.Seat `json:"unresponsive,omitempty"`
	Attempts     [2]int      `json:"attempts"`
}

// Play runs a full game. An invalid config is reported before any generator is
// called. A player that never produces a parseable move aborts the game; that
// is a normal outcome, not an error. The returned error is non-nil only for an
// invalid config or when ctx ended the game early.
func Play(ctx context.Context, cfg engine.Config, p1, p2 agent.Generator, opts Options) (Result, error) {
	g, err := engine.NewGame(cfg)
	if err != nil {
		return Result{}, err
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Resolver.Log == nil {
		opts.Resolver.Log = log
	}
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	notice := cfg.Noise > 0
	if opts.NoiseNotice != nil {
		notice = *opts.NoiseNotice
	}

	var res Result
	for !g.Done() {
		round := g.Round()
		start := time.Now()
		h := g.History()
		r1, r2 := resolveRound(ctx, opts, h, cfg, notice, p1, p2)
		res.Attempts[0] += r1.Attempts
		res.Attempts[1] += r2.Attempts

		if !r1.OK || !r2.OK {
			g.Abort()
			res.Unresponsive = engine.P1
			if r1.OK {
				res.Unresponsive = engine.P2
			}
			log.Info("game aborted",
				zap.Int("round", round),
				zap.String("seat", string(res.Unresponsive)),
			)
			break
		}

		m1 := engine.ApplyNoise(r1.Move, cfg.Noise, rng)
		m2 := engine.ApplyNoise(r2.Move, cfg.Noise, rng)
		if err := g.Apply(m1, m2); err != nil {
			return res, err
		}
		s1, s2 := g.Scores()
		rl := RoundLog{
			Round:    round,
			P1:       r1,
			P2:       r2,
			Intended: engine.Round{P1: r1.Move, P2: r2.Move},
			Played:   engine.Round{P1: m1, P2: m2},
			Scores:   [2]int{s1, s2},
			Elapsed:  time.Since(start),
		}
		res.Rounds = append(res.Rounds, rl)
		if opts.OnRound != nil {
			opts.OnRound(rl)
		}
		log.Debug("round played",
			zap.Int("round", round),
			zap.String("p1", m1.Code()),
			zap.String("p2", m2.Code()),
			zap.Int("score_p1", s1),
			zap.Int("score_p2", s2),
		)
	}
	res.Outcome = g.Outcome()
	if res.Status == engine.Aborted {
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// resolveRound asks both seats every round, even when P1 is already
// unresponsive. Parallel mode asks them concurrently.
func resolveRound(ctx context.Context, opts Options, h engine.History, cfg engine.Config, notice bool, p1, p2 agent.Generator) (agent.Resolution, agent.Resolution) {
	ask := func(s engine.Seat, gen agent.Generator) agent.Resolution {
		prompt := agent.Compose(h, s, cfg, notice)
		return opts.Resolver.Resolve(ctx, gen, prompt, cfg)
	}
	if !opts.Parallel {
		r1 := ask(engine.P1, p1)
		return r1, ask(engine.P2, p2)
	}
	var r1, r2 agent.Resolution
	var eg errgroup.Group
	eg.Go(func() error { r1 = ask(engine.P1, p1); return nil })
	eg.Go(func() error { r2 = ask(engine.P2, p2); return nil })
	_ = eg.Wait()
	return r1, r2
}
