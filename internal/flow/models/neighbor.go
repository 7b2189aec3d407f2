package models

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

func init() {
	Register("NeighborPrior", func(args map[string]any) (Model, error) {
		return NewNeighborPrior(args)
	})
}

// NeighborPrior is a runtime-optimized flow estimator in the spirit of the
// neural-prior family: it carries no learned weights and instead fits each
// frame pair at test time. The prior here is a single rigid translation,
// refined by iterating nearest-neighbor correspondences between the
// translated source cloud and the target cloud, with a final per-point
// residual snap to the matched neighbor.
type NeighborPrior struct {
	box        CropBox
	iterations int
	cellSize   float64
	maxMatchM  float64
}

// NewNeighborPrior builds the estimator from config args: "iterations"
// (default 8), "cell_size" metres for the correspondence grid (default 2.0)
// and "max_match_distance" metres (default equals cell_size).
func NewNeighborPrior(args map[string]any) (*NeighborPrior, error) {
	box, err := CropBoxFromArg(args)
	if err != nil {
		return nil, err
	}
	p := &NeighborPrior{box: box, iterations: 8, cellSize: 2.0}
	if v, ok := args["iterations"]; ok {
		f, ok := v.(float64)
		if !ok || f < 1 {
			return nil, fmt.Errorf("iterations must be a positive number, got %v", v)
		}
		p.iterations = int(f)
	}
	if v, ok := args["cell_size"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return nil, fmt.Errorf("cell_size must be a positive number, got %v", v)
		}
		p.cellSize = f
	}
	p.maxMatchM = p.cellSize
	if v, ok := args["max_match_distance"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return nil, fmt.Errorf("max_match_distance must be a positive number, got %v", v)
		}
		p.maxMatchM = f
	}
	return p, nil
}

// Name implements Model.
func (p *NeighborPrior) Name() string { return "NeighborPrior" }

// Forward implements Model.
func (p *NeighborPrior) Forward(ctx context.Context, batch *flow.Batch) (*Output, error) {
	start := time.Now()
	out := &Output{
		Flow:            make([][]flow.Vec3, len(batch.Samples)),
		PC0ValidIndexes: make([][]int, len(batch.Samples)),
		PC1ValidIndexes: make([][]int, len(batch.Samples)),
	}
	for i, sample := range batch.Samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(sample.Points) < 2 {
			return nil, fmt.Errorf("sample %d has %d frames, need at least 2", i, len(sample.Points))
		}
		pc0Full := sample.Points[len(sample.Points)-2]
		pc1Full := sample.Points[len(sample.Points)-1]
		valid0 := p.box.ValidIndexes(pc0Full)
		valid1 := p.box.ValidIndexes(pc1Full)
		out.PC0ValidIndexes[i] = valid0
		out.PC1ValidIndexes[i] = valid1
		out.Flow[i] = p.fit(pc0Full.Select(valid0), pc1Full.Select(valid1))
	}
	out.Elapsed = time.Since(start)
	return out, nil
}

// fit estimates per-point flow from pc0 to pc1.
func (p *NeighborPrior) fit(pc0, pc1 flow.PointCloud) []flow.Vec3 {
	flows := make([]flow.Vec3, len(pc0))
	if len(pc0) == 0 || len(pc1) == 0 {
		return flows
	}

	grid := buildGrid(pc1, p.cellSize)

	// Refine a global translation by averaging matched displacements.
	var t flow.Vec3
	for iter := 0; iter < p.iterations; iter++ {
		var sum flow.Vec3
		matched := 0
		for _, src := range pc0 {
			q := src.Add(t)
			nn, ok := grid.nearest(q, p.maxMatchM)
			if !ok {
				continue
			}
			sum = sum.Add(nn.Sub(src))
			matched++
		}
		if matched == 0 {
			break
		}
		next := sum.Scale(1 / float64(matched))
		if next.Sub(t).Norm() < 1e-4 {
			t = next
			break
		}
		t = next
	}

	// Per-point refinement: snap to the matched neighbor where one exists,
	// otherwise fall back to the global translation.
	for i, src := range pc0 {
		if nn, ok := grid.nearest(src.Add(t), p.maxMatchM); ok {
			flows[i] = nn.Sub(src)
		} else {
			flows[i] = t
		}
	}
	return flows
}

// voxelGrid is a uniform spatial hash for nearest-neighbor queries.
type voxelGrid struct {
	cell   float64
	points flow.PointCloud
	cells  map[[3]int][]int
}

func buildGrid(pc flow.PointCloud, cell float64) *voxelGrid {
	g := &voxelGrid{cell: cell, points: pc, cells: make(map[[3]int][]int, len(pc))}
	for i, p := range pc {
		k := g.key(p)
		g.cells[k] = append(g.cells[k], i)
	}
	return g
}

func (g *voxelGrid) key(p flow.Vec3) [3]int {
	return [3]int{
		int(math.Floor(p.X / g.cell)),
		int(math.Floor(p.Y / g.cell)),
		int(math.Floor(p.Z / g.cell)),
	}
}

// nearest returns the closest stored point within maxDist of q, scanning
// the 3x3x3 cell neighborhood around q.
func (g *voxelGrid) nearest(q flow.Vec3, maxDist float64) (flow.Vec3, bool) {
	center := g.key(q)
	best := -1
	bestDist := maxDist
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				k := [3]int{center[0] + dx, center[1] + dy, center[2] + dz}
				for _, idx := range g.cells[k] {
					d := g.points[idx].Sub(q).Norm()
					if d <= bestDist {
						best = idx
						bestDist = d
					}
				}
			}
		}
	}
	if best < 0 {
		return flow.Vec3{}, false
	}
	return g.points[best], true
}
