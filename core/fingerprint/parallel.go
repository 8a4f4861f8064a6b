package fingerprint

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/ifcslim/core/graph"
)

// FingerprintAll computes digests for every entity in levels, leaves first.
// levels is the output of graph.Levels: an entity only references entities in
// strictly lower levels, so each level is hashed in parallel once the level
// below is done. workers <= 0 means runtime.NumCPU().
func (e *Engine) FingerprintAll(ctx context.Context, levels [][]graph.ID, workers int) (map[graph.ID]Digest, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(workers)
		for _, id := range level {
			eg.Go(func() error {
				if err := egctx.Err(); err != nil {
					return err
				}
				_, err := e.Fingerprint(id)
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[graph.ID]Digest, len(e.memo))
	for id, d := range e.memo {
		out[id] = d
	}
	return out, nil
}
