package flow

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Proximity indexes for the first accumulator dimension.
const (
	ProximityClose = 0
	ProximityFar   = 1

	// NumProximities is the size of the proximity dimension.
	NumProximities = 2
)

// Dims describes the shape of the bucketed error tensors:
// proximity x category x speed-bucket x error-bucket.
type Dims struct {
	Proximities  int `json:"proximities"`
	Categories   int `json:"categories"`
	SpeedBuckets int `json:"speed_buckets"`
	ErrorBuckets int `json:"error_buckets"`
}

// Size returns the flat element count.
func (d Dims) Size() int {
	return d.Proximities * d.Categories * d.SpeedBuckets * d.ErrorBuckets
}

// Index flattens a 4-D coordinate into the flat tensor offset.
func (d Dims) Index(prox, cat, speed, epe int) int {
	return ((prox*d.Categories+cat)*d.SpeedBuckets+speed)*d.ErrorBuckets + epe
}

// AccumulatorConfig fixes the category table and bucket boundaries for an
// accumulator. All tables are supplied explicitly; there is no process-wide
// state.
type AccumulatorConfig struct {
	Categories   *CategoryTable
	SpeedBuckets *BucketSet
	ErrorBuckets *BucketSet

	// Strict rejects out-of-range speed/error values with
	// ErrValueOutOfRange instead of silently dropping the point.
	Strict bool
}

// Accumulator maintains bucketed endpoint-error sums and counts for one
// validation worker. It is owned exclusively by that worker between epoch
// boundaries, so no locking is needed; cross-worker combination happens via
// Snapshot and Merge at epoch end.
type Accumulator struct {
	cfg  AccumulatorConfig
	dims Dims

	errorSum   []float64
	errorCount []int64

	totalForwardSeconds float64
	totalForwardCount   int64
}

// Snapshot is a deep copy of an accumulator's state.
type Snapshot struct {
	Dims                Dims
	ErrorSum            []float64
	ErrorCount          []int64
	TotalForwardSeconds float64
	TotalForwardCount   int64
}

// NewAccumulator creates a zeroed accumulator for the given tables.
func NewAccumulator(cfg AccumulatorConfig) (*Accumulator, error) {
	if cfg.Categories == nil || cfg.SpeedBuckets == nil || cfg.ErrorBuckets == nil {
		return nil, fmt.Errorf("accumulator config requires categories, speed buckets and error buckets")
	}
	dims := Dims{
		Proximities:  NumProximities,
		Categories:   cfg.Categories.Len(),
		SpeedBuckets: cfg.SpeedBuckets.Count(),
		ErrorBuckets: cfg.ErrorBuckets.Count(),
	}
	return &Accumulator{
		cfg:        cfg,
		dims:       dims,
		errorSum:   make([]float64, dims.Size()),
		errorCount: make([]int64, dims.Size()),
	}, nil
}

// Dims returns the tensor shape.
func (a *Accumulator) Dims() Dims {
	return a.dims
}

// Config returns the tables the accumulator was built with.
func (a *Accumulator) Config() AccumulatorConfig {
	return a.cfg
}

// Update records one point's endpoint error. proximity is ProximityClose or
// ProximityFar; categoryID is resolved through the category table.
// Speed/error values outside all bucket ranges are dropped, or rejected when
// the accumulator is strict.
func (a *Accumulator) Update(proximity int, categoryID int32, speedMPS, errorM float64) error {
	if proximity < 0 || proximity >= NumProximities {
		return fmt.Errorf("proximity index %d out of range: %w", proximity, ErrShapeMismatch)
	}
	catIdx, err := a.cfg.Categories.Index(categoryID)
	if err != nil {
		return err
	}
	speedIdx, ok := a.cfg.SpeedBuckets.Index(speedMPS)
	if !ok {
		if a.cfg.Strict {
			return fmt.Errorf("speed %v m/s: %w", speedMPS, ErrValueOutOfRange)
		}
		return nil
	}
	epeIdx, ok := a.cfg.ErrorBuckets.Index(errorM)
	if !ok {
		if a.cfg.Strict {
			return fmt.Errorf("endpoint error %v m: %w", errorM, ErrValueOutOfRange)
		}
		return nil
	}

	i := a.dims.Index(proximity, catIdx, speedIdx, epeIdx)
	a.errorSum[i] += errorM
	a.errorCount[i]++
	return nil
}

// AddRuntime records forward-pass wall time for throughput reporting. Both
// totals are monotonically non-decreasing between resets.
func (a *Accumulator) AddRuntime(seconds float64, samples int64) {
	a.totalForwardSeconds += seconds
	a.totalForwardCount += samples
}

// Merge adds another accumulator's state element-wise into this one. Merge
// is associative and commutative, so combination order across workers does
// not matter.
func (a *Accumulator) Merge(other *Accumulator) error {
	if other.dims != a.dims {
		return fmt.Errorf("cannot merge accumulators with dims %+v and %+v", a.dims, other.dims)
	}
	floats.Add(a.errorSum, other.errorSum)
	for i, c := range other.errorCount {
		a.errorCount[i] += c
	}
	a.totalForwardSeconds += other.totalForwardSeconds
	a.totalForwardCount += other.totalForwardCount
	return nil
}

// Reset zeroes all tensors in place. Idempotent.
func (a *Accumulator) Reset() {
	for i := range a.errorSum {
		a.errorSum[i] = 0
	}
	for i := range a.errorCount {
		a.errorCount[i] = 0
	}
	a.totalForwardSeconds = 0
	a.totalForwardCount = 0
}

// Snapshot returns a deep copy of the current state without mutating it.
// Taking the snapshot before merge/reset avoids double counting.
func (a *Accumulator) Snapshot() Snapshot {
	sum := make([]float64, len(a.errorSum))
	copy(sum, a.errorSum)
	count := make([]int64, len(a.errorCount))
	copy(count, a.errorCount)
	return Snapshot{
		Dims:                a.dims,
		ErrorSum:            sum,
		ErrorCount:          count,
		TotalForwardSeconds: a.totalForwardSeconds,
		TotalForwardCount:   a.totalForwardCount,
	}
}
