package flow

import (
	"fmt"
	"math"
)

// Vec3 is a point or flow vector in sensor-frame metres.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// HorizontalLInf returns the L-infinity norm of the (x, y) coordinates,
// the horizontal distance used for the close/far proximity split.
func (v Vec3) HorizontalLInf() float64 {
	return math.Max(math.Abs(v.X), math.Abs(v.Y))
}

// PointCloud is an ordered set of points from one frame.
type PointCloud []Vec3

// Select returns the points at the given indexes, in order.
func (pc PointCloud) Select(indexes []int) PointCloud {
	out := make(PointCloud, len(indexes))
	for i, idx := range indexes {
		out[i] = pc[idx]
	}
	return out
}

// ClassMask holds a per-point category id array for one frame.
type ClassMask []int32

// Select returns the class ids at the given indexes, in order.
func (m ClassMask) Select(indexes []int) ClassMask {
	out := make(ClassMask, len(indexes))
	for i, idx := range indexes {
		out[i] = m[idx]
	}
	return out
}

// Sample is one sequence from a dataset batch: a stack of per-timestep point
// arrays, the matching ground-truth flowed point arrays, and per-point
// category ids. All three stacks must have the same length and matching
// per-frame point counts.
type Sample struct {
	Points  []PointCloud
	Flowed  []PointCloud
	Classes []ClassMask
}

// Batch is a mini-batch of samples.
type Batch struct {
	Samples []Sample
}

// DecodeSamplePair extracts the evaluated frame pair from a sample. A
// sequence may contain more than two timesteps; only the last two frames
// form the pair (frame T-2 as source, frame T-1 as target), earlier frames
// are model context only. pc0Valid selects the source-frame points the model
// produced flow for. The returned ground-truth flow is flowed minus source.
func DecodeSamplePair(s Sample, pc0Valid []int) (points PointCloud, gtFlow []Vec3, classes ClassMask, err error) {
	if len(s.Points) < 2 {
		return nil, nil, nil, fmt.Errorf("sample has %d frames, need at least 2: %w", len(s.Points), ErrShapeMismatch)
	}
	if len(s.Flowed) != len(s.Points) || len(s.Classes) != len(s.Points) {
		return nil, nil, nil, fmt.Errorf("sample stacks disagree: points=%d flowed=%d classes=%d: %w",
			len(s.Points), len(s.Flowed), len(s.Classes), ErrShapeMismatch)
	}

	src := len(s.Points) - 2
	pc0 := s.Points[src]
	flowed := s.Flowed[src]
	mask := s.Classes[src]
	if len(flowed) != len(pc0) || len(mask) != len(pc0) {
		return nil, nil, nil, fmt.Errorf("source frame arrays disagree: points=%d flowed=%d classes=%d: %w",
			len(pc0), len(flowed), len(mask), ErrShapeMismatch)
	}
	for _, idx := range pc0Valid {
		if idx < 0 || idx >= len(pc0) {
			return nil, nil, nil, fmt.Errorf("valid index %d out of range [0,%d): %w", idx, len(pc0), ErrShapeMismatch)
		}
	}

	points = pc0.Select(pc0Valid)
	flowedSel := flowed.Select(pc0Valid)
	classes = mask.Select(pc0Valid)

	gtFlow = make([]Vec3, len(points))
	for i := range points {
		gtFlow[i] = flowedSel[i].Sub(points[i])
	}
	return points, gtFlow, classes, nil
}
