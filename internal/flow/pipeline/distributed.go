package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/jykim94/SceneFlowZoo/internal/config"
	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/flow/dist"
)

// RunDistributedValidation runs one validation epoch across the configured
// number of in-process workers. Each worker gets its own model instance and
// accumulator; their tensors are combined by the epoch-end collective, so
// the returned leader report equals a single-worker pass over the same
// dataset. Worker counts come from cfg.GetWorkers(); one worker degenerates
// to RunValidation on a loopback.
func RunDistributedValidation(ctx context.Context, cfg *config.RunConfig, opts Options, epoch int) (*flow.Report, error) {
	workers := cfg.GetWorkers()
	if workers == 1 {
		w, err := Assemble(cfg, opts)
		if err != nil {
			return nil, err
		}
		return w.RunValidation(ctx, epoch)
	}

	members, err := dist.NewGroup(workers)
	if err != nil {
		return nil, err
	}

	wrappers := make([]*Wrapper, workers)
	for rank, m := range members {
		wopts := opts
		wopts.Gatherer = m
		// Only the leader touches the store and the plot output.
		if rank != 0 {
			wopts.Reports = nil
			wopts.Plotter = nil
		}
		w, err := Assemble(cfg, wopts)
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", rank, err)
		}
		wrappers[rank] = w
	}

	// A worker that fails before the epoch-end collective would leave the
	// survivors blocked in the barrier forever; cancelling the shared
	// context unwinds them so the failure surfaces instead of hanging.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		report   *flow.Report
		firstErr error
	)
	for rank, w := range wrappers {
		wg.Add(1)
		go func(rank int, w *Wrapper) {
			defer wg.Done()
			r, err := w.RunValidation(ctx, epoch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("worker %d: %w", rank, err)
				}
				cancel()
			}
			if r != nil {
				report = r
			}
		}(rank, w)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return report, nil
}
