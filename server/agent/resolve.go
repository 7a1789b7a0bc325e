package agent

import (
	"context"
	"fmt"

	"coop-arena/server/engine"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Strategy controls how the prompt grows between attempts.
type Strategy string

const (
	// RetryAppend keeps appending corrective instructions (conversation grows linearly).
	RetryAppend Strategy = "append"
	// RetryFresh re-issues the base prompt with a single corrective instruction.
	RetryFresh Strategy = "fresh"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", RetryAppend:
		return RetryAppend, nil
	case RetryFresh:
		return RetryFresh, nil
	}
	return "", fmt.Errorf("unknown retry strategy %q (want append|fresh)", s)
}

var (
	resolverAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coop_resolver_attempts",
		Help:    "Generator calls needed to obtain (or give up on) one move.",
		Buckets: prometheus.LinearBuckets(1, 1, 6),
	})
	resolverOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coop_resolver_outcomes_total",
		Help: "Per-move resolution outcomes.",
	}, []string{"outcome"})
)

type Resolver struct {
	Strategy Strategy
	Log      *zap.Logger
}

// Resolve asks gen for a move, retrying with a corrective instruction while
// unparseable answers keep coming. It makes at most cfg.MaxRetries+1 calls.
// Generator errors use up an attempt like an unparseable answer; a done
// context ends resolution immediately with no move.
func (r Resolver) Resolve(ctx context.Context, gen Generator, prompt string, cfg engine.Config) Resolution {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	var res Resolution
	cur := prompt
	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			resolverOutcomes.WithLabelValues("cancelled").Inc()
			return res
		}
		res.Attempts++
		text, err := gen.Generate(ctx, cur)
		if err != nil {
			res.Err = err
			log.Warn("generator failed", zap.Int("attempt", res.Attempts), zap.Error(err))
		} else {
			res.Raw = append(res.Raw, text)
			if m, ok := Interpret(text, cfg.OptionJ, cfg.OptionF); ok {
				res.Move, res.OK = m, true
				resolverAttempts.Observe(float64(res.Attempts))
				resolverOutcomes.WithLabelValues("move").Inc()
				return res
			}
			log.Debug("unparseable answer", zap.Int("attempt", res.Attempts), zap.String("raw", truncate(text, 200)))
		}
		if res.Attempts > cfg.MaxRetries {
			resolverAttempts.Observe(float64(res.Attempts))
			resolverOutcomes.WithLabelValues("unresponsive").Inc()
			log.Info("agent unresponsive", zap.Int("attempts", res.Attempts))
			return res
		}
		cur = r.retryPrompt(prompt, cur, cfg)
	}
}

func (r Resolver) retryPrompt(base, cur string, cfg engine.Config) string {
	if r.Strategy == RetryFresh {
		return base + "\n" + Insist(cfg)
	}
	return cur + "\n" + Insist(cfg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
