package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/jykim94/SceneFlowZoo/internal/config"
	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/flow/models"
)

func init() {
	models.Register("constantFlowTest", func(args map[string]any) (models.Model, error) {
		m := &constantFlow{lr: 1.0}
		if v, ok := args["bias_x"].(float64); ok {
			m.bias.X = v
		}
		return m, nil
	})
}

// constantFlow predicts one learned flow vector for every point. A single
// training step with lr 1 snaps the vector to the batch-mean ground-truth
// flow, which makes training convergence observable in one epoch.
type constantFlow struct {
	bias flow.Vec3
	lr   float64
}

func (m *constantFlow) Name() string { return "constantFlowTest" }

func (m *constantFlow) Forward(_ context.Context, batch *flow.Batch) (*models.Output, error) {
	out := &models.Output{
		Flow:            make([][]flow.Vec3, len(batch.Samples)),
		PC0ValidIndexes: make([][]int, len(batch.Samples)),
		PC1ValidIndexes: make([][]int, len(batch.Samples)),
		Elapsed:         time.Microsecond,
	}
	for i, s := range batch.Samples {
		src := s.Points[len(s.Points)-2]
		tgt := s.Points[len(s.Points)-1]
		valid := make([]int, len(src))
		flows := make([]flow.Vec3, len(src))
		for j := range src {
			valid[j] = j
			flows[j] = m.bias
		}
		tgtValid := make([]int, len(tgt))
		for j := range tgt {
			tgtValid[j] = j
		}
		out.Flow[i] = flows
		out.PC0ValidIndexes[i] = valid
		out.PC1ValidIndexes[i] = tgtValid
	}
	return out, nil
}

func (m *constantFlow) TrainingStep(_ context.Context, batch *flow.Batch) (float64, map[string]float64, error) {
	var mean flow.Vec3
	var loss float64
	var n int
	for _, s := range batch.Samples {
		src := s.Points[len(s.Points)-2]
		valid := make([]int, len(src))
		for j := range src {
			valid[j] = j
		}
		_, gtFlow, _, err := flow.DecodeSamplePair(s, valid)
		if err != nil {
			return 0, nil, err
		}
		for _, g := range gtFlow {
			mean = mean.Add(g)
			d := m.bias.Sub(g)
			loss += d.Norm() * d.Norm()
			n++
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	mean = mean.Scale(1 / float64(n))
	m.bias = m.bias.Add(mean.Sub(m.bias).Scale(m.lr))
	return loss / float64(n), map[string]float64{"bias_x": m.bias.X}, nil
}

func trainConfig(t *testing.T) *config.RunConfig {
	t.Helper()
	datasetArgs := map[string]any{
		"batches":        float64(2),
		"ground_points":  float64(40),
		"cluster_points": float64(10),
		"clusters":       float64(2),
		"speed_mps":      float64(0),
	}
	return &config.RunConfig{
		Name:         "constantflow_train",
		Model:        config.ComponentSpec{Name: "constantFlowTest", Args: map[string]any{"bias_x": 1.0}},
		TestDataset:  config.ComponentSpec{Name: "Synthetic", Args: datasetArgs},
		TrainDataset: &config.ComponentSpec{Name: "Synthetic", Args: datasetArgs},
		IsTrainable:  boolPtr(true),
		Epochs:       intPtr(2),
		OutputDir:    strPtr(t.TempDir()),
	}
}

func TestTrain_ConvergesAndValidates(t *testing.T) {
	w, err := Assemble(trainConfig(t), Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	report, err := w.Train(context.Background())
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if report == nil {
		t.Fatal("want a final validation report")
	}
	if report.Epoch != 1 {
		t.Errorf("last report epoch = %d, want 1", report.Epoch)
	}

	// With zero ground-truth motion everywhere the first training step
	// pulls the learned vector from (1,0,0) to zero, after which every
	// prediction is exact.
	if report.FullMoverEPE != 0 || report.FullNonmoverEPE != 0 {
		t.Errorf("post-training EPE = (%v, %v), want 0", report.FullMoverEPE, report.FullNonmoverEPE)
	}
}

func TestTrain_RejectsNonTrainableModel(t *testing.T) {
	cfg := trainConfig(t)
	cfg.Model = config.ComponentSpec{Name: "ZeroFlow"}
	w, err := Assemble(cfg, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if _, err := w.Train(context.Background()); err == nil {
		t.Error("ZeroFlow is not trainable, want error")
	}
}
