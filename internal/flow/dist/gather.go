package dist

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

// GatherResult is the outcome of the epoch-end collective on one worker.
// Every worker computes the same Global totals; Leader is true on exactly
// one worker (rank 0), which is responsible for producing the report.
type GatherResult struct {
	Global flow.GlobalMetrics
	Rank   int
	Leader bool
}

// GatherAndReset runs the epoch-boundary protocol for one worker:
//
//  1. Snapshot the private accumulator (so the gathered values cannot be
//     clobbered by the reset).
//  2. All-gather the four state tensors across the world.
//  3. Sum across the world axis; summation is element-wise and the merge is
//     commutative, so every rank derives identical global totals.
//  4. Reset the private accumulator for the next epoch.
//
// Reset happens strictly after the gather has completed: the collective
// blocks until every worker has contributed, so no worker can lose
// in-flight data to an early reset.
func GatherAndReset(ctx context.Context, acc *flow.Accumulator, g AllGatherer) (*GatherResult, error) {
	snap := acc.Snapshot()

	sums, err := g.AllGatherFloat64(ctx, snap.ErrorSum)
	if err != nil {
		return nil, fmt.Errorf("gather error sums: %w", err)
	}
	counts, err := g.AllGatherInt64(ctx, snap.ErrorCount)
	if err != nil {
		return nil, fmt.Errorf("gather error counts: %w", err)
	}
	times, err := g.AllGatherFloat64(ctx, []float64{snap.TotalForwardSeconds})
	if err != nil {
		return nil, fmt.Errorf("gather forward times: %w", err)
	}
	fcounts, err := g.AllGatherInt64(ctx, []int64{snap.TotalForwardCount})
	if err != nil {
		return nil, fmt.Errorf("gather forward counts: %w", err)
	}

	global := flow.GlobalMetrics{
		Dims:       snap.Dims,
		ErrorSum:   make([]float64, len(snap.ErrorSum)),
		ErrorCount: make([]int64, len(snap.ErrorCount)),
	}
	for rank, s := range sums {
		if len(s) != len(global.ErrorSum) {
			return nil, fmt.Errorf("rank %d gathered %d sum elements, want %d: %w",
				rank, len(s), len(global.ErrorSum), flow.ErrShapeMismatch)
		}
		floats.Add(global.ErrorSum, s)
	}
	for rank, c := range counts {
		if len(c) != len(global.ErrorCount) {
			return nil, fmt.Errorf("rank %d gathered %d count elements, want %d: %w",
				rank, len(c), len(global.ErrorCount), flow.ErrShapeMismatch)
		}
		for i, v := range c {
			global.ErrorCount[i] += v
		}
	}
	for _, tvals := range times {
		global.TotalForwardSeconds += tvals[0]
	}
	for _, cvals := range fcounts {
		global.TotalForwardCount += cvals[0]
	}

	// The gathered copies are complete; the local state can now start the
	// next epoch clean.
	acc.Reset()

	return &GatherResult{
		Global: global,
		Rank:   g.Rank(),
		Leader: g.Rank() == 0,
	}, nil
}

// Loopback is a single-worker AllGatherer for non-distributed runs: rank 0
// of a world of one, returning the local tensor as the only stack entry.
type Loopback struct{}

// Rank implements AllGatherer.
func (Loopback) Rank() int { return 0 }

// WorldSize implements AllGatherer.
func (Loopback) WorldSize() int { return 1 }

// AllGatherFloat64 implements AllGatherer.
func (Loopback) AllGatherFloat64(_ context.Context, local []float64) ([][]float64, error) {
	cp := make([]float64, len(local))
	copy(cp, local)
	return [][]float64{cp}, nil
}

// AllGatherInt64 implements AllGatherer.
func (Loopback) AllGatherInt64(_ context.Context, local []int64) ([][]int64, error) {
	cp := make([]int64, len(local))
	copy(cp, local)
	return [][]int64{cp}, nil
}
