// Package dist coordinates multi-worker validation: a narrow all-gather
// capability plus the epoch-end gather/reset protocol for flow accumulators.
//
// The harness runs one worker per accelerator device, each validating a
// disjoint shard with no shared mutable state. The only synchronization
// point is the epoch-end all-gather, a blocking collective: every worker
// must reach it before any proceeds. Group implements the collective for
// workers in a single process; an external distributed runtime can satisfy
// AllGatherer instead.
package dist

import (
	"context"
	"fmt"
	"sync"
)

// AllGatherer collects a per-worker tensor into a stacked tensor across all
// workers. Both calls block until every worker in the world has
// contributed; the result is ordered by rank.
type AllGatherer interface {
	Rank() int
	WorldSize() int
	AllGatherFloat64(ctx context.Context, local []float64) ([][]float64, error)
	AllGatherInt64(ctx context.Context, local []int64) ([][]int64, error)
}

// Group is an in-process collective over a fixed set of member goroutines.
// Members must all invoke the same sequence of collective calls; each call
// forms one barrier round. A member whose context is cancelled abandons the
// round, but the round itself still completes only when every member has
// arrived. A permanently stalled member hangs the collective, which is
// treated as a fatal failure of the whole job.
type Group struct {
	size    int
	mu      sync.Mutex
	current *round
}

// round is a single barrier all-gather. It is immutable once done is
// closed, so late readers never race the next round.
type round struct {
	floats    [][]float64
	ints      [][]int64
	remaining int
	done      chan struct{}
}

// Member is one participant's handle on a Group.
type Member struct {
	group *Group
	rank  int
}

// NewGroup creates an in-process collective with the given world size and
// returns the per-rank member handles.
func NewGroup(size int) ([]*Member, error) {
	if size <= 0 {
		return nil, fmt.Errorf("group size must be positive, got %d", size)
	}
	g := &Group{size: size}
	members := make([]*Member, size)
	for i := range members {
		members[i] = &Member{group: g, rank: i}
	}
	return members, nil
}

// Rank returns this member's rank in [0, WorldSize).
func (m *Member) Rank() int { return m.rank }

// WorldSize returns the number of members in the group.
func (m *Member) WorldSize() int { return m.group.size }

// AllGatherFloat64 implements AllGatherer.
func (m *Member) AllGatherFloat64(ctx context.Context, local []float64) ([][]float64, error) {
	cp := make([]float64, len(local))
	copy(cp, local)
	r, err := m.group.join(ctx, func(r *round) {
		r.floats[m.rank] = cp
	})
	if err != nil {
		return nil, err
	}
	return r.floats, nil
}

// AllGatherInt64 implements AllGatherer.
func (m *Member) AllGatherInt64(ctx context.Context, local []int64) ([][]int64, error) {
	cp := make([]int64, len(local))
	copy(cp, local)
	r, err := m.group.join(ctx, func(r *round) {
		r.ints[m.rank] = cp
	})
	if err != nil {
		return nil, err
	}
	return r.ints, nil
}

// join deposits this member's contribution into the current round and
// blocks until the round completes. The last member to arrive seals the
// round and opens the group for the next one.
func (g *Group) join(ctx context.Context, store func(*round)) (*round, error) {
	g.mu.Lock()
	if g.current == nil {
		g.current = &round{
			floats:    make([][]float64, g.size),
			ints:      make([][]int64, g.size),
			remaining: g.size,
			done:      make(chan struct{}),
		}
	}
	r := g.current
	store(r)
	r.remaining--
	last := r.remaining == 0
	if last {
		g.current = nil
	}
	g.mu.Unlock()

	if last {
		close(r.done)
		return r, nil
	}
	select {
	case <-r.done:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
