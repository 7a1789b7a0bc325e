package sweep

import (
	"context"
	"fmt"

	"coop-arena/server/llm"

	"go.uber.org/zap"
)

// Prefetch pulls the weights of every planned player whose backend supports
// it, one at a time, so the first game of each model does not pay for the
// download. It returns the number of players pulled.
func (r *Runner) Prefetch(ctx context.Context) (int, error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	if err := r.Plan.Validate(); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range r.Plan.players() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		g, err := r.generator(p)
		if err != nil {
			return n, err
		}
		puller, ok := g.(llm.Puller)
		if !ok {
			log.Debug("backend cannot prefetch", zap.String("model", p.Tag()))
			continue
		}
		log.Info("pulling model", zap.String("model", p.Tag()))
		if err := puller.Pull(ctx); err != nil {
			return n, fmt.Errorf("sweep: pull %s: %w", p.Tag(), err)
		}
		n++
	}
	return n, nil
}
