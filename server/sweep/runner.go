package sweep

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"coop-arena/server/agent"
	"coop-arena/server/engine"
	"coop-arena/server/match"
	"coop-arena/server/rating"
	"coop-arena/server/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var gamesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "coop_sweep_games_total",
	Help: "Games finished by the sweep, by outcome.",
}, []string{"status"})

// GeneratorFactory returns the agent that plays as p.
type GeneratorFactory func(p store.Player) (agent.Generator, error)

type Runner struct {
	Plan         Plan
	Store        store.Store
	NewGenerator GeneratorFactory
	// Workers bounds concurrent games; <=0 means 1.
	Workers int
	// StrictStore stops the sweep on the first failed write instead of
	// logging it and moving on.
	StrictStore bool
	// Seed makes noise reproducible per game. Zero seeds from the clock.
	Seed   int64
	Rating rating.Config
	Log    *zap.Logger
	// Replay plays every job even if the store already has it; the stored
	// game is replaced.
	Replay bool
	// OnRound and OnGame are called from worker goroutines. OnGame runs
	// after the game is persisted.
	OnRound func(Job, match.RoundLog)
	OnGame  func(store.GameRecord)

	mu   sync.Mutex
	gens map[string]agent.Generator
}

// Report counts what one Run did.
type Report struct {
	Planned       int `json:"planned"`
	Skipped       int `json:"skipped"`
	Completed     int `json:"completed"`
	Aborted       int `json:"aborted"`
	PersistFailed int `json:"persist_failed"`
}

// Run plays every planned game not already in the store. An unresponsive
// agent is a recorded outcome, not an error. Cancelling ctx stops the sweep
// between games; a game interrupted mid-way is not stored and will be
// replayed next time.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	if r.NewGenerator == nil {
		return Report{}, errors.New("sweep: no generator factory")
	}
	if r.Rating == (rating.Config{}) {
		r.Rating = rating.DefaultConfig()
	}
	if err := r.Plan.Validate(); err != nil {
		return Report{}, err
	}
	done, err := r.Store.DoneKeys(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("sweep: load finished games: %w", err)
	}

	jobs := r.Plan.Jobs()
	rep := Report{Planned: len(jobs)}
	var pending []Job
	for _, j := range jobs {
		if _, ok := done[j.Key()]; ok && !r.Replay {
			rep.Skipped++
			continue
		}
		pending = append(pending, j)
	}
	log.Info("sweep starting",
		zap.Int("planned", rep.Planned),
		zap.Int("skipped", rep.Skipped),
		zap.Int("pending", len(pending)),
	)

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var repMu sync.Mutex
	for _, j := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, ok, err := r.play(gctx, j, log)
			if err != nil || !ok {
				return err
			}
			saveErr := r.Store.SaveGame(gctx, &rec)

			repMu.Lock()
			switch {
			case saveErr != nil:
				rep.PersistFailed++
			case rec.Status == engine.Completed:
				rep.Completed++
			default:
				rep.Aborted++
			}
			repMu.Unlock()

			if saveErr != nil {
				gamesTotal.WithLabelValues("persist_failed").Inc()
				log.Error("save game failed", zap.String("key", rec.Key()), zap.Error(saveErr))
				if r.StrictStore {
					return fmt.Errorf("sweep: save %s: %w", rec.Key(), saveErr)
				}
				return nil
			}
			gamesTotal.WithLabelValues(string(rec.Status)).Inc()
			if err := r.updateRatings(gctx, rec); err != nil {
				log.Warn("rating update failed", zap.String("key", rec.Key()), zap.Error(err))
			}
			if r.OnGame != nil {
				r.OnGame(rec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		log.Info("sweep stopped", zap.Error(err))
		return rep, err
	}
	log.Info("sweep finished",
		zap.Int("completed", rep.Completed),
		zap.Int("aborted", rep.Aborted),
		zap.Int("persist_failed", rep.PersistFailed),
	)
	return rep, nil
}

// play returns ok=false when ctx ended the game early.
func (r *Runner) play(ctx context.Context, j Job, log *zap.Logger) (store.GameRecord, bool, error) {
	p1, err := r.generator(j.P1)
	if err != nil {
		return store.GameRecord{}, false, err
	}
	p2, err := r.generator(j.P2)
	if err != nil {
		return store.GameRecord{}, false, err
	}
	glog := log.With(zap.String("key", j.Key()))
	opts := match.Options{
		Resolver:    agent.Resolver{Strategy: r.Plan.Strategy(), Log: glog},
		NoiseNotice: r.Plan.NoiseNotice,
		Rng:         rand.New(rand.NewSource(r.seedFor(j))),
		Parallel:    r.Plan.Parallel,
		Log:         glog,
	}
	if r.OnRound != nil {
		opts.OnRound = func(rl match.RoundLog) { r.OnRound(j, rl) }
	}
	start := time.Now()
	res, err := match.Play(ctx, j.Config, p1, p2, opts)
	if err != nil {
		if ctx.Err() != nil {
			return store.GameRecord{}, false, nil
		}
		return store.GameRecord{}, false, err
	}
	rec := Record(j, res)
	glog.Info("game finished",
		zap.String("status", string(rec.Status)),
		zap.Int("rounds", rec.CompletedRounds),
		zap.Int("score_p1", rec.ScoreP1),
		zap.Int("score_p2", rec.ScoreP2),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rec, true, nil
}

func (r *Runner) generator(p store.Player) (agent.Generator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gens[p.Tag()]; ok {
		return g, nil
	}
	g, err := r.NewGenerator(p)
	if err != nil {
		return nil, fmt.Errorf("sweep: agent for %s: %w", p.Tag(), err)
	}
	if r.gens == nil {
		r.gens = map[string]agent.Generator{}
	}
	r.gens[p.Tag()] = g
	return g, nil
}

func (r *Runner) seedFor(j Job) int64 {
	if r.Seed == 0 {
		return time.Now().UnixNano()
	}
	h := fnv.New64a()
	h.Write([]byte(j.Key()))
	return r.Seed ^ int64(h.Sum64())
}

// updateRatings applies a completed cross-play game to both models' ratings.
// Self play and aborted games leave ratings alone.
func (r *Runner) updateRatings(ctx context.Context, rec store.GameRecord) error {
	a, b := rec.P1.Tag(), rec.P2.Tag()
	if a == b || rec.Status != engine.Completed {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ra, err := r.Store.Rating(ctx, a)
	if err != nil {
		return err
	}
	rb, err := r.Store.Rating(ctx, b)
	if err != nil {
		return err
	}
	sa, sb := rating.UpdatePair(toState(ra), toState(rb),
		rec.ScoreP1, rec.ScoreP2, rec.Rounds*maxCell(rec.Payoff), r.Rating)
	if err := r.Store.PutRating(ctx, fromState(a, sa)); err != nil {
		return err
	}
	return r.Store.PutRating(ctx, fromState(b, sb))
}

func maxCell(pm engine.PayoffMatrix) int {
	best := 0
	for _, row := range pm {
		for _, c := range row {
			best = max(best, c.P1, c.P2)
		}
	}
	return best
}

func toState(r store.Rating) rating.State {
	return rating.State{
		Elo:   r.Elo,
		G:     rating.Glicko2{Rating: r.GRating, RD: r.GRD, Volatility: r.GSigma, Games: r.Games},
		Games: r.Games,
	}
}

func fromState(model string, s rating.State) store.Rating {
	return store.Rating{
		Model:     model,
		Elo:       s.Elo,
		GRating:   s.G.Rating,
		GRD:       s.G.RD,
		GSigma:    s.G.Volatility,
		Games:     s.Games,
		UpdatedAt: time.Now().UTC(),
	}
}

// Record flattens a played game for storage.
func Record(j Job, res match.Result) store.GameRecord {
	intended := make(engine.History, len(res.Rounds))
	for i, rl := range res.Rounds {
		intended[i] = rl.Intended
	}
	return store.GameRecord{
		P1:              j.P1,
		P2:              j.P2,
		Family:          j.Family,
		Noise:           j.Noise,
		Rep:             j.Rep,
		OptionJ:         j.Config.OptionJ,
		OptionF:         j.Config.OptionF,
		Payoff:          j.Config.Payoff,
		Rounds:          j.Config.Rounds,
		Status:          res.Status,
		CompletedRounds: res.CompletedRounds,
		ScoreP1:         res.ScoreP1,
		ScoreP2:         res.ScoreP2,
		Moves:           res.History,
		Intended:        intended,
		Unresponsive:    res.Unresponsive,
		AttemptsP1:      res.Attempts[0],
		AttemptsP2:      res.Attempts[1],
	}
}
