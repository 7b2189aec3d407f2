package pipeline

import (
	"context"
	"fmt"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/flow/datasets"
	"github.com/jykim94/SceneFlowZoo/internal/flow/models"
	"github.com/jykim94/SceneFlowZoo/internal/monitoring"
)

// Train runs the configured training schedule: epochs over the training
// dataset with a validation pass every validate_every epochs and always
// after the final epoch. Returns the last validation report produced.
// The model must implement models.Trainable.
func (w *Wrapper) Train(ctx context.Context) (*flow.Report, error) {
	trainable, ok := w.model.(models.Trainable)
	if !ok {
		return nil, fmt.Errorf("model %s is not trainable", w.model.Name())
	}
	if w.cfg.TrainDataset == nil {
		return nil, fmt.Errorf("train_dataset is not configured")
	}
	trainSet, err := datasets.New(w.cfg.TrainDataset.Name, w.cfg.TrainDataset.Args)
	if err != nil {
		return nil, fmt.Errorf("build train dataset: %w", err)
	}

	epochs := w.cfg.GetEpochs()
	validateEvery := w.cfg.GetValidateEvery()

	var last *flow.Report
	for epoch := 0; epoch < epochs; epoch++ {
		var lossSum float64
		var steps int
		for i := 0; i < trainSet.Batches(); i++ {
			batch, err := trainSet.Batch(i)
			if err != nil {
				return nil, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			loss, _, err := trainable.TrainingStep(ctx, batch)
			if err != nil {
				return nil, fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
			}
			lossSum += loss
			steps++
		}
		if steps > 0 {
			monitoring.Logf("%s epoch %d: mean training loss %.6f over %d batches",
				w.cfg.Name, epoch, lossSum/float64(steps), steps)
		}

		if (epoch+1)%validateEvery == 0 || epoch == epochs-1 {
			report, err := w.RunValidation(ctx, epoch)
			if err != nil {
				return nil, err
			}
			if report != nil {
				last = report
			}
		}
	}
	return last, nil
}
