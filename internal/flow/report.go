package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// GlobalMetrics holds globally-summed accumulator tensors after the
// epoch-end gather.
type GlobalMetrics struct {
	Dims                Dims      `json:"dims"`
	ErrorSum            []float64 `json:"error_sum"`
	ErrorCount          []int64   `json:"error_count"`
	TotalForwardSeconds float64   `json:"total_forward_seconds"`
	TotalForwardCount   int64     `json:"total_forward_count"`
}

// Report is the per-epoch validation result: the raw bucket tensors plus the
// derived headline scalars. It is produced on the designated aggregator
// worker only and persisted keyed by run id and config name.
type Report struct {
	ReportID   string `json:"report_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	ConfigName string `json:"config_name"`
	Epoch      int    `json:"epoch"`

	FullMoverEPE     float64 `json:"full_mover_epe"`
	FullNonmoverEPE  float64 `json:"full_nonmover_epe"`
	CloseMoverEPE    float64 `json:"close_mover_epe"`
	CloseNonmoverEPE float64 `json:"close_nonmover_epe"`

	// AverageForwardSeconds is total forward wall time divided by forward
	// count.
	AverageForwardSeconds float64 `json:"average_forward_time"`

	Dims              Dims       `json:"dims"`
	ErrorSum          []float64  `json:"error_sum"`
	ErrorCount        []int64    `json:"error_count"`
	SpeedBucketSplits []float64  `json:"speed_bucket_splits_mps"`
	ErrorBucketSplits []float64  `json:"endpoint_error_splits_m"`
	Categories        []Category `json:"categories"`

	CreatedAt int64 `json:"created_at"`
}

// BuildReport derives the headline scalars from globally-summed tensors.
// Fails with ErrNoSamplesProcessed when no forward passes were recorded;
// accumulator state is unaffected either way.
func BuildReport(g GlobalMetrics, table *CategoryTable, speedBuckets, errorBuckets *BucketSet, configName string, epoch int) (*Report, error) {
	if g.TotalForwardCount == 0 {
		return nil, fmt.Errorf("epoch %d: %w", epoch, ErrNoSamplesProcessed)
	}
	if len(g.ErrorSum) != g.Dims.Size() || len(g.ErrorCount) != g.Dims.Size() {
		return nil, fmt.Errorf("tensor length %d/%d does not match dims %+v: %w",
			len(g.ErrorSum), len(g.ErrorCount), g.Dims, ErrShapeMismatch)
	}

	return &Report{
		ConfigName:            configName,
		Epoch:                 epoch,
		FullMoverEPE:          sliceEPE(g, table, -1, true),
		FullNonmoverEPE:       sliceEPE(g, table, -1, false),
		CloseMoverEPE:         sliceEPE(g, table, ProximityClose, true),
		CloseNonmoverEPE:      sliceEPE(g, table, ProximityClose, false),
		AverageForwardSeconds: g.TotalForwardSeconds / float64(g.TotalForwardCount),
		Dims:                  g.Dims,
		ErrorSum:              g.ErrorSum,
		ErrorCount:            g.ErrorCount,
		SpeedBucketSplits:     speedBuckets.Splits(),
		ErrorBucketSplits:     errorBuckets.Splits(),
		Categories:            table.Categories(),
		CreatedAt:             time.Now().UnixNano(),
	}, nil
}

// sliceEPE computes the mean endpoint error over a tensor slice: proximity
// restricts the first axis (-1 means both), mover selects non-background or
// background categories. Cells with zero count contribute nothing to either
// side of the division, so an empty slice yields exactly 0, never NaN.
func sliceEPE(g GlobalMetrics, table *CategoryTable, proximity int, mover bool) float64 {
	var sum float64
	var count int64
	for p := 0; p < g.Dims.Proximities; p++ {
		if proximity >= 0 && p != proximity {
			continue
		}
		for c := 0; c < g.Dims.Categories; c++ {
			if table.IsBackgroundIndex(c) == mover {
				continue
			}
			for s := 0; s < g.Dims.SpeedBuckets; s++ {
				for e := 0; e < g.Dims.ErrorBuckets; e++ {
					i := g.Dims.Index(p, c, s, e)
					if g.ErrorCount[i] == 0 {
						continue
					}
					sum += g.ErrorSum[i]
					count += g.ErrorCount[i]
				}
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// CellMeanEPE returns the mean endpoint error of one cell, 0 for empty
// cells.
func (r *Report) CellMeanEPE(prox, cat, speed, epe int) float64 {
	i := r.Dims.Index(prox, cat, speed, epe)
	if r.ErrorCount[i] == 0 {
		return 0
	}
	return r.ErrorSum[i] / float64(r.ErrorCount[i])
}

// WriteFile persists the report as JSON, creating parent directories as
// needed. The snapshot is re-loadable with LoadReportFile for offline
// analysis.
func (r *Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// LoadReportFile reads a report snapshot written by WriteFile.
func LoadReportFile(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}
