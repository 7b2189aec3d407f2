// Package models defines the scene-flow model contract and a registry of
// runnable estimators. Network internals are deliberately thin: the harness
// only depends on a model producing per-sample flow predictions, valid-point
// indexes and forward wall time.
package models

import (
	"context"
	"time"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

// Output is a model's result for one batch.
type Output struct {
	// Flow holds, per sample, the predicted flow for each valid source
	// point, aligned with PC0ValidIndexes.
	Flow [][]flow.Vec3

	// PC0ValidIndexes / PC1ValidIndexes select the points of the source and
	// target frames the model actually operated on (after range cropping).
	PC0ValidIndexes [][]int
	PC1ValidIndexes [][]int

	// Elapsed is the wall-clock duration of the forward pass over the whole
	// batch.
	Elapsed time.Duration
}

// Model estimates scene flow for the last frame pair of each sample.
type Model interface {
	Name() string
	Forward(ctx context.Context, batch *flow.Batch) (*Output, error)
}

// Trainable is implemented by models with a learnable component. The
// training loop feeds batches and logs the returned loss; optimizer state
// and checkpointing live with the model.
type Trainable interface {
	Model
	TrainingStep(ctx context.Context, batch *flow.Batch) (loss float64, metrics map[string]float64, err error)
}
