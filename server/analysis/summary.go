// Package analysis aggregates stored games into per-group summaries.
package analysis

import (
	"math/rand"
	"sort"
	"strconv"

	"coop-arena/server/engine"
	"coop-arena/server/judge"
	"coop-arena/server/store"
)

// Efficiency is the joint score as a fraction of the best joint score the
// matrix allows over the game's rounds.
func Efficiency(r store.GameRecord) float64 {
	best := r.Rounds * r.Payoff.MaxJoint()
	if best <= 0 {
		return 0
	}
	return float64(r.ScoreP1+r.ScoreP2) / float64(best)
}

type GroupKey struct {
	Model  string  `json:"model"`
	Family string  `json:"family"`
	Noise  float64 `json:"noise"`
}

func (k GroupKey) String() string {
	return k.Model + " / " + k.Family + " / noise=" + strconv.FormatFloat(k.Noise, 'g', -1, 64)
}

type Summary struct {
	GroupKey
	Games     int `json:"games"`
	Completed int `json:"completed"`
	Aborted   int `json:"aborted"`

	AbortRate float64 `json:"abort_rate"`

	// Efficiency is per game, shared by both players of a cross-play game.
	Efficiency   float64    `json:"efficiency"`
	EfficiencyCI [2]float64 `json:"efficiency_ci95"`

	Cooperation   float64    `json:"cooperation_rate"`
	CooperationCI [2]float64 `json:"cooperation_ci95"`

	// Mean points per seat the model played, and what its opponent got.
	MeanScore         float64 `json:"mean_score"`
	MeanOpponentScore float64 `json:"mean_opponent_score"`

	Accuracy   float64                `json:"best_response_rate"`
	Strategies map[judge.Strategy]int `json:"strategies"`
}

type Options struct {
	Bootstrap int // resamples; 0 means 1000
	Rng       *rand.Rand
}

type seat struct {
	tag      string
	rep      judge.SeatReport
	own, opp int
}

// Summarize groups games by model tag, family and noise. Each seat's moves
// count toward its own model; a cross-play game appears under both models,
// a self-play game once. Efficiency and scores use completed games only;
// cooperation counts every intended move, aborted games included.
func Summarize(games []store.GameRecord, opts Options) []Summary {
	if opts.Bootstrap <= 0 {
		opts.Bootstrap = 1000
	}
	type acc struct {
		s           Summary
		eff         []float64
		own, opp    []float64
		coop, moves int
		best, seen  int
	}
	groups := map[GroupKey]*acc{}
	group := func(k GroupKey) *acc {
		a, ok := groups[k]
		if !ok {
			a = &acc{s: Summary{GroupKey: k, Strategies: map[judge.Strategy]int{}}}
			groups[k] = a
		}
		return a
	}
	for _, g := range games {
		intended := g.Intended
		if len(intended) == 0 {
			intended = g.Moves
		}
		rep := judge.Evaluate(g.Payoff, intended, g.Moves)
		seats := []seat{
			{tag: g.P1.Tag(), rep: rep.P1, own: g.ScoreP1, opp: g.ScoreP2},
			{tag: g.P2.Tag(), rep: rep.P2, own: g.ScoreP2, opp: g.ScoreP1},
		}
		completed := g.Status == engine.Completed

		for i, st := range seats {
			a := group(GroupKey{Model: st.tag, Family: g.Family, Noise: g.Noise})
			if i == 0 || st.tag != seats[0].tag {
				a.s.Games++
				if completed {
					a.s.Completed++
					a.eff = append(a.eff, Efficiency(g))
				} else {
					a.s.Aborted++
				}
			}
			a.coop += st.rep.Cooperations
			a.moves += st.rep.Rounds
			a.best += st.rep.BestResponses
			a.seen += st.rep.Rounds
			if completed {
				a.s.Strategies[st.rep.Strategy]++
				a.own = append(a.own, float64(st.own))
				a.opp = append(a.opp, float64(st.opp))
			}
		}
	}

	out := make([]Summary, 0, len(groups))
	for _, a := range groups {
		s := a.s
		s.AbortRate = float64(s.Aborted) / float64(s.Games)
		s.Efficiency = mean(a.eff)
		s.EfficiencyCI[0], s.EfficiencyCI[1] = BootstrapCI95(a.eff, opts.Bootstrap, opts.Rng)
		if a.moves > 0 {
			s.Cooperation = float64(a.coop) / float64(a.moves)
			s.CooperationCI[0], s.CooperationCI[1] = WilsonCI95(a.coop, 0, a.moves)
		}
		if a.seen > 0 {
			s.Accuracy = float64(a.best) / float64(a.seen)
		}
		s.MeanScore = mean(a.own)
		s.MeanOpponentScore = mean(a.opp)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].GroupKey, out[j].GroupKey
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.Noise < b.Noise
	})
	return out
}
