// Package pipeline assembles a run configuration into a working harness:
// model and dataset from their registries, the bucketed error accumulator,
// the per-sample evaluator and the epoch-end gather, plus optional report
// persistence and plotting. One Wrapper is one validation worker.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jykim94/SceneFlowZoo/internal/config"
	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/flow/datasets"
	"github.com/jykim94/SceneFlowZoo/internal/flow/dist"
	"github.com/jykim94/SceneFlowZoo/internal/flow/models"
	"github.com/jykim94/SceneFlowZoo/internal/flow/monitor"
	"github.com/jykim94/SceneFlowZoo/internal/flow/storage/sqlite"
	"github.com/jykim94/SceneFlowZoo/internal/monitoring"
	"github.com/jykim94/SceneFlowZoo/internal/security"
)

// Options supplies the run-wide collaborators a worker plugs into. The
// zero value is a standalone worker with no persistence.
type Options struct {
	// Gatherer is the worker's endpoint in the epoch-end collective. Nil
	// selects the single-worker loopback.
	Gatherer dist.AllGatherer

	// Reports, when set, persists each epoch report keyed by RunID.
	Reports *sqlite.ReportStore

	// Plotter, when set, renders a PNG of each epoch report.
	Plotter *monitor.ReportPlotter

	// RunID stamps persisted reports. Required when Reports is set.
	RunID string
}

// Wrapper is one validation (or training) worker: a model, its shard of
// the dataset and a private metric accumulator.
type Wrapper struct {
	cfg     *config.RunConfig
	model   models.Model
	dataset datasets.Dataset

	table        *flow.CategoryTable
	speedBuckets *flow.BucketSet
	errorBuckets *flow.BucketSet
	acc          *flow.Accumulator
	eval         *flow.SampleEvaluator

	gatherer dist.AllGatherer
	reports  *sqlite.ReportStore
	plotter  *monitor.ReportPlotter
	runID    string

	hasLabels bool
}

// Assemble builds a worker from a validated run configuration. Unknown
// model or dataset names fail here, before any batch is touched.
func Assemble(cfg *config.RunConfig, opts Options) (*Wrapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}
	if opts.Reports != nil && opts.RunID == "" {
		return nil, fmt.Errorf("run id is required when a report store is set")
	}

	model, err := models.New(cfg.Model.Name, cfg.Model.Args)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	dataset, err := datasets.New(cfg.TestDataset.Name, cfg.TestDataset.Args)
	if err != nil {
		return nil, fmt.Errorf("build test dataset: %w", err)
	}

	table, err := cfg.CategoryTable()
	if err != nil {
		return nil, fmt.Errorf("category table: %w", err)
	}
	speedBuckets, err := flow.NewBucketSet(cfg.GetSpeedBucketSplitsMPS())
	if err != nil {
		return nil, fmt.Errorf("speed buckets: %w", err)
	}
	errorBuckets, err := flow.NewBucketSet(cfg.GetEndpointErrorSplitsM())
	if err != nil {
		return nil, fmt.Errorf("error buckets: %w", err)
	}
	acc, err := flow.NewAccumulator(flow.AccumulatorConfig{
		Categories:   table,
		SpeedBuckets: speedBuckets,
		ErrorBuckets: errorBuckets,
		Strict:       cfg.GetStrictBuckets(),
	})
	if err != nil {
		return nil, fmt.Errorf("accumulator: %w", err)
	}
	eval := flow.NewSampleEvaluator(acc, flow.SampleEvaluatorConfig{
		CloseThresholdMeters: cfg.GetCloseObjectThresholdM(),
		FramesPerSecond:      cfg.GetFrameRateHz(),
	})

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = dist.Loopback{}
	}

	return &Wrapper{
		cfg:          cfg,
		model:        model,
		dataset:      dataset,
		table:        table,
		speedBuckets: speedBuckets,
		errorBuckets: errorBuckets,
		acc:          acc,
		eval:         eval,
		gatherer:     gatherer,
		reports:      opts.Reports,
		plotter:      opts.Plotter,
		runID:        opts.RunID,
		hasLabels:    cfg.GetHasLabels(),
	}, nil
}

// Model returns the worker's model instance.
func (w *Wrapper) Model() models.Model { return w.model }

// Accumulator returns the worker's private accumulator.
func (w *Wrapper) Accumulator() *flow.Accumulator { return w.acc }

// ValidationStep runs the model forward on one batch and scores every
// sample against its ground truth. Runtime is recorded even for
// label-free datasets, so submission runs still report forward time.
func (w *Wrapper) ValidationStep(ctx context.Context, batch *flow.Batch) error {
	out, err := w.model.Forward(ctx, batch)
	if err != nil {
		return fmt.Errorf("%s forward: %w", w.model.Name(), err)
	}
	if len(out.Flow) != len(batch.Samples) || len(out.PC0ValidIndexes) != len(batch.Samples) {
		return fmt.Errorf("%s returned %d flow stacks for %d samples: %w",
			w.model.Name(), len(out.Flow), len(batch.Samples), flow.ErrShapeMismatch)
	}
	w.acc.AddRuntime(out.Elapsed.Seconds(), int64(len(batch.Samples)))

	if !w.hasLabels {
		return nil
	}
	for i, sample := range batch.Samples {
		points, gtFlow, classes, err := flow.DecodeSamplePair(sample, out.PC0ValidIndexes[i])
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if err := w.eval.EvaluateSample(points, out.Flow[i], gtFlow, classes); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}

// ValidationEpochEnd runs the epoch-boundary gather and, on the leader
// worker, builds and publishes the epoch report. Non-leader workers
// return (nil, nil) after their accumulator resets.
func (w *Wrapper) ValidationEpochEnd(ctx context.Context, epoch int) (*flow.Report, error) {
	res, err := dist.GatherAndReset(ctx, w.acc, w.gatherer)
	if err != nil {
		return nil, fmt.Errorf("epoch %d gather: %w", epoch, err)
	}
	if !res.Leader {
		return nil, nil
	}

	report, err := flow.BuildReport(res.Global, w.table, w.speedBuckets, w.errorBuckets, w.cfg.Name, epoch)
	if err != nil {
		return nil, err
	}
	report.RunID = w.runID

	if w.reports != nil {
		if err := w.reports.Insert(report); err != nil {
			return nil, fmt.Errorf("persist report: %w", err)
		}
	}
	path := filepath.Join(w.cfg.GetOutputDir(), fmt.Sprintf("%s_epoch_%03d.json", security.SanitizeFilename(w.cfg.Name), epoch))
	if err := report.WriteFile(path); err != nil {
		return nil, err
	}
	if w.plotter != nil {
		if _, err := w.plotter.PlotReport(report); err != nil {
			return nil, fmt.Errorf("plot report: %w", err)
		}
	}

	monitoring.Logf("%s epoch %d: mover EPE full=%.4f close=%.4f, nonmover EPE full=%.4f close=%.4f, avg forward %.4fs",
		w.cfg.Name, epoch,
		report.FullMoverEPE, report.CloseMoverEPE,
		report.FullNonmoverEPE, report.CloseNonmoverEPE,
		report.AverageForwardSeconds)
	return report, nil
}

// RunValidation evaluates this worker's shard of the test dataset and
// finishes the epoch. Batches are sharded round-robin by rank, so
// worker shards partition the dataset exactly.
func (w *Wrapper) RunValidation(ctx context.Context, epoch int) (*flow.Report, error) {
	rank := w.gatherer.Rank()
	world := w.gatherer.WorldSize()
	for i := rank; i < w.dataset.Batches(); i += world {
		batch, err := w.dataset.Batch(i)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		monitoring.Verbosef("rank %d: batch %d/%d", rank, i, w.dataset.Batches())
		if err := w.ValidationStep(ctx, batch); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	return w.ValidationEpochEnd(ctx, epoch)
}
