package flow

import "fmt"

// Defaults matching a 10 Hz autonomous-driving LiDAR rig.
const (
	DefaultCloseThresholdMeters = 35.0
	DefaultFramesPerSecond      = 10.0
)

// SampleEvaluatorConfig tunes the per-sample classification.
type SampleEvaluatorConfig struct {
	// CloseThresholdMeters is the L-infinity horizontal distance from the
	// sensor origin below which a point counts as "close". Zero selects the
	// default.
	CloseThresholdMeters float64

	// FramesPerSecond converts per-frame ground-truth flow magnitudes into
	// metres per second. Zero selects the default.
	FramesPerSecond float64
}

// SampleEvaluator classifies one sample's per-point endpoint errors into an
// accumulator's buckets.
type SampleEvaluator struct {
	acc            *Accumulator
	closeThreshold float64
	frameScale     float64
}

// NewSampleEvaluator creates an evaluator dispatching into acc.
func NewSampleEvaluator(acc *Accumulator, cfg SampleEvaluatorConfig) *SampleEvaluator {
	if cfg.CloseThresholdMeters == 0 {
		cfg.CloseThresholdMeters = DefaultCloseThresholdMeters
	}
	if cfg.FramesPerSecond == 0 {
		cfg.FramesPerSecond = DefaultFramesPerSecond
	}
	return &SampleEvaluator{
		acc:            acc,
		closeThreshold: cfg.CloseThresholdMeters,
		frameScale:     cfg.FramesPerSecond,
	}
}

// EvaluateSample scores one frame pair. points holds the source-frame
// coordinates, predicted and groundTruth the per-point flow vectors, classes
// the per-point category ids. All four arrays must have the same length.
//
// Per point the evaluator derives the proximity flag from the horizontal
// L-infinity distance, the ground-truth speed from the flow magnitude scaled
// to per-second, and the endpoint error from the Euclidean distance between
// predicted and ground-truth flow, then updates the accumulator. Updates are
// additive, so dispatch order is irrelevant.
func (e *SampleEvaluator) EvaluateSample(points PointCloud, predicted, groundTruth []Vec3, classes ClassMask) error {
	n := len(points)
	if len(predicted) != n || len(groundTruth) != n {
		return fmt.Errorf("points=%d predicted=%d groundTruth=%d: %w",
			n, len(predicted), len(groundTruth), ErrShapeMismatch)
	}
	if len(classes) != n {
		return fmt.Errorf("points=%d classes=%d: %w", n, len(classes), ErrShapeMismatch)
	}

	for i := 0; i < n; i++ {
		prox := ProximityFar
		if points[i].HorizontalLInf() <= e.closeThreshold {
			prox = ProximityClose
		}
		speed := groundTruth[i].Norm() * e.frameScale
		epe := predicted[i].Sub(groundTruth[i]).Norm()
		if err := e.acc.Update(prox, classes[i], speed, epe); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

// Accumulator returns the accumulator this evaluator dispatches into.
func (e *SampleEvaluator) Accumulator() *Accumulator {
	return e.acc
}
