package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jykim94/SceneFlowZoo/internal/config"
	"github.com/jykim94/SceneFlowZoo/internal/db"
	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/flow/datasets"
	"github.com/jykim94/SceneFlowZoo/internal/flow/storage/sqlite"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// testConfig is a ZeroFlow run over a small synthetic dataset. ZeroFlow
// predicts zero motion, so the mover endpoint error equals the vehicle
// per-frame step magnitude (speed / frame rate = 0.5 m) and the
// nonmover error is exactly zero.
func testConfig(t *testing.T) *config.RunConfig {
	t.Helper()
	return &config.RunConfig{
		Name:  "zeroflow_synthetic",
		Model: config.ComponentSpec{Name: "ZeroFlow"},
		TestDataset: config.ComponentSpec{
			Name: "Synthetic",
			Args: map[string]any{
				"batches":        float64(2),
				"ground_points":  float64(60),
				"cluster_points": float64(10),
				"clusters":       float64(2),
			},
		},
		OutputDir: strPtr(t.TempDir()),
	}
}

func TestRunValidation_ZeroFlowHeadlines(t *testing.T) {
	cfg := testConfig(t)
	w, err := Assemble(cfg, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	report, err := w.RunValidation(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunValidation: %v", err)
	}
	if report == nil {
		t.Fatal("single worker is the leader, want a report")
	}
	if report.ConfigName != "zeroflow_synthetic" || report.Epoch != 0 {
		t.Errorf("report identity = %q epoch %d", report.ConfigName, report.Epoch)
	}

	if math.Abs(report.FullMoverEPE-0.5) > 1e-9 {
		t.Errorf("FullMoverEPE = %v, want 0.5", report.FullMoverEPE)
	}
	if math.Abs(report.CloseMoverEPE-0.5) > 1e-9 {
		t.Errorf("CloseMoverEPE = %v, want 0.5", report.CloseMoverEPE)
	}
	if report.FullNonmoverEPE != 0 {
		t.Errorf("FullNonmoverEPE = %v, want 0", report.FullNonmoverEPE)
	}

	// 2 batches of 1 sample each.
	var total int64
	for _, c := range report.ErrorCount {
		total += c
	}
	if want := int64(2 * (60 + 2*10)); total != want {
		t.Errorf("total scored points = %d, want %d", total, want)
	}

	path := filepath.Join(cfg.GetOutputDir(), "zeroflow_synthetic_epoch_000.json")
	loaded, err := flow.LoadReportFile(path)
	if err != nil {
		t.Fatalf("LoadReportFile: %v", err)
	}
	if diff := cmp.Diff(report, loaded); diff != "" {
		t.Errorf("written report mismatch (-mem +file):\n%s", diff)
	}
}

func TestRunDistributedValidation_MatchesSingleWorker(t *testing.T) {
	single, err := Assemble(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want, err := single.RunValidation(context.Background(), 0)
	if err != nil {
		t.Fatalf("single worker: %v", err)
	}

	cfg := testConfig(t)
	cfg.Workers = intPtr(2)
	got, err := RunDistributedValidation(context.Background(), cfg, Options{}, 0)
	if err != nil {
		t.Fatalf("distributed: %v", err)
	}
	if got == nil {
		t.Fatal("want a leader report")
	}

	if diff := cmp.Diff(want.ErrorSum, got.ErrorSum); diff != "" {
		t.Errorf("ErrorSum mismatch (-single +distributed):\n%s", diff)
	}
	if diff := cmp.Diff(want.ErrorCount, got.ErrorCount); diff != "" {
		t.Errorf("ErrorCount mismatch (-single +distributed):\n%s", diff)
	}
	if got.FullMoverEPE != want.FullMoverEPE || got.CloseNonmoverEPE != want.CloseNonmoverEPE {
		t.Errorf("headline EPEs diverge: single (%v, %v) distributed (%v, %v)",
			want.FullMoverEPE, want.CloseNonmoverEPE, got.FullMoverEPE, got.CloseNonmoverEPE)
	}
}

// A worker that fails mid-epoch must surface its error instead of leaving
// the surviving workers blocked in the epoch-end collective.
func TestRunDistributedValidation_WorkerFailureSurfaces(t *testing.T) {
	dir := t.TempDir()
	sample := flow.Sample{
		Points:  []flow.PointCloud{{{X: 1}}, {{X: 1.5}}},
		Flowed:  []flow.PointCloud{{{X: 1.5}}, {{X: 2}}},
		Classes: []flow.ClassMask{{flow.DefaultBackgroundID}, {flow.DefaultBackgroundID}},
	}
	for _, name := range []string{"000.json", "002.json"} {
		if err := datasets.WriteSequenceFile(filepath.Join(dir, name), sample); err != nil {
			t.Fatalf("WriteSequenceFile: %v", err)
		}
	}
	// Batch 1 lands on rank 1 under round-robin sharding with two workers.
	if err := os.WriteFile(filepath.Join(dir, "001.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	cfg := testConfig(t)
	cfg.Workers = intPtr(2)
	cfg.TestDataset = config.ComponentSpec{
		Name: "SequenceDirectory",
		Args: map[string]any{"root": dir},
	}

	done := make(chan error, 1)
	go func() {
		_, err := RunDistributedValidation(context.Background(), cfg, Options{}, 0)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("corrupt batch, want an error")
		}
		if !strings.Contains(err.Error(), "worker 1") {
			t.Errorf("err = %v, want the failing worker identified", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunDistributedValidation still blocked after a worker error")
	}
}

func TestValidationStep_NoLabelsSkipsScoring(t *testing.T) {
	cfg := testConfig(t)
	cfg.HasLabels = boolPtr(false)
	w, err := Assemble(cfg, Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	report, err := w.RunValidation(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunValidation: %v", err)
	}
	for i, c := range report.ErrorCount {
		if c != 0 {
			t.Fatalf("ErrorCount[%d] = %d, want 0 without labels", i, c)
		}
	}
	if report.FullMoverEPE != 0 || report.AverageForwardSeconds < 0 {
		t.Errorf("label-free report = EPE %v, forward %v", report.FullMoverEPE, report.AverageForwardSeconds)
	}
}

func TestRunValidation_PersistsReport(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	runs := sqlite.NewRunStore(database.DB)
	run := &sqlite.Run{ConfigName: "zeroflow_synthetic", Model: "ZeroFlow", Dataset: "Synthetic", WorldSize: 1}
	if err := runs.Insert(run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	reports := sqlite.NewReportStore(database.DB)
	w, err := Assemble(testConfig(t), Options{Reports: reports, RunID: run.RunID})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	report, err := w.RunValidation(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunValidation: %v", err)
	}

	stored, err := reports.Latest(run.RunID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if diff := cmp.Diff(report, stored); diff != "" {
		t.Errorf("stored report mismatch (-mem +db):\n%s", diff)
	}
}

func TestAssemble_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.Name = "NoSuchModel"
	if _, err := Assemble(cfg, Options{}); err == nil {
		t.Error("unknown model name, want error")
	}

	cfg = testConfig(t)
	cfg.TestDataset.Name = "NoSuchDataset"
	if _, err := Assemble(cfg, Options{}); err == nil {
		t.Error("unknown dataset name, want error")
	}

	cfg = testConfig(t)
	if _, err := Assemble(cfg, Options{Reports: &sqlite.ReportStore{}}); err == nil {
		t.Error("report store without run id, want error")
	}
}
