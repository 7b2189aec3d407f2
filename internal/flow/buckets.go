package flow

import (
	"fmt"
	"math"
	"sort"
)

// BucketSet derives half-open intervals [lower, upper) from a sorted list of
// boundary values. N boundaries yield N-1 buckets; a value exactly equal to
// a bucket's upper bound falls into the next bucket.
type BucketSet struct {
	splits []float64
}

// NewBucketSet builds a bucket set from strictly increasing boundaries.
// At least two boundaries are required. The final boundary may be +Inf to
// make the top bucket unbounded.
func NewBucketSet(splits []float64) (*BucketSet, error) {
	if len(splits) < 2 {
		return nil, fmt.Errorf("need at least 2 bucket boundaries, got %d", len(splits))
	}
	for i := 1; i < len(splits); i++ {
		if !(splits[i] > splits[i-1]) {
			return nil, fmt.Errorf("bucket boundaries must be strictly increasing: splits[%d]=%v >= splits[%d]=%v",
				i-1, splits[i-1], i, splits[i])
		}
	}
	for i, s := range splits {
		if math.IsNaN(s) {
			return nil, fmt.Errorf("bucket boundary %d is NaN", i)
		}
	}
	cp := make([]float64, len(splits))
	copy(cp, splits)
	return &BucketSet{splits: cp}, nil
}

// Count returns the number of buckets.
func (b *BucketSet) Count() int {
	return len(b.splits) - 1
}

// Bounds returns the half-open interval [lower, upper) of bucket i.
func (b *BucketSet) Bounds(i int) (lower, upper float64) {
	return b.splits[i], b.splits[i+1]
}

// Index resolves v to a bucket index. The second return is false when v is
// below the first boundary or at/above the last.
func (b *BucketSet) Index(v float64) (int, bool) {
	last := len(b.splits) - 1
	if math.IsNaN(v) || v < b.splits[0] || v >= b.splits[last] {
		return 0, false
	}
	// SearchFloat64s returns the first i with splits[i] >= v. When v sits
	// exactly on a boundary that index is the bucket it opens; otherwise the
	// bucket below contains it.
	i := sort.SearchFloat64s(b.splits, v)
	if i < last && b.splits[i] == v {
		return i, true
	}
	return i - 1, true
}

// Splits returns a copy of the boundary list.
func (b *BucketSet) Splits() []float64 {
	cp := make([]float64, len(b.splits))
	copy(cp, b.splits)
	return cp
}

// Label formats bucket i's interval for display, e.g. "0.5-2.0" or "2.0+".
func (b *BucketSet) Label(i int) string {
	lo, hi := b.Bounds(i)
	if math.IsInf(hi, 1) {
		return fmt.Sprintf("%.2g+", lo)
	}
	return fmt.Sprintf("%.2g-%.2g", lo, hi)
}
