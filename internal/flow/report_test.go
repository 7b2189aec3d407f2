package flow

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func testGlobalMetrics(t *testing.T, acc *Accumulator) GlobalMetrics {
	t.Helper()
	snap := acc.Snapshot()
	return GlobalMetrics{
		Dims:                snap.Dims,
		ErrorSum:            snap.ErrorSum,
		ErrorCount:          snap.ErrorCount,
		TotalForwardSeconds: snap.TotalForwardSeconds,
		TotalForwardCount:   snap.TotalForwardCount,
	}
}

func TestBuildReport_HeadlineScalars(t *testing.T) {
	acc := testAccumulator(t, false)

	// Two mover points (category 1): one close with EPE 0.2, one far with
	// EPE 0.4. One background point, close, EPE 0.6.
	mustUpdate := func(prox int, cat int32, speed, epe float64) {
		t.Helper()
		if err := acc.Update(prox, cat, speed, epe); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	mustUpdate(ProximityClose, 1, 6.0, 0.2)
	mustUpdate(ProximityFar, 1, 6.0, 0.4)
	mustUpdate(ProximityClose, -1, 0.0, 0.6)
	acc.AddRuntime(2.0, 4)

	cfg := acc.Config()
	rep, err := BuildReport(testGlobalMetrics(t, acc), cfg.Categories, cfg.SpeedBuckets, cfg.ErrorBuckets, "unit_test", 0)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	approx := func(name string, got, want float64) {
		t.Helper()
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
	approx("FullMoverEPE", rep.FullMoverEPE, 0.3)     // (0.2+0.4)/2
	approx("FullNonmoverEPE", rep.FullNonmoverEPE, 0.6)
	approx("CloseMoverEPE", rep.CloseMoverEPE, 0.2)
	approx("CloseNonmoverEPE", rep.CloseNonmoverEPE, 0.6)
	approx("AverageForwardSeconds", rep.AverageForwardSeconds, 0.5)
}

func TestBuildReport_EmptyCellsYieldZeroNotNaN(t *testing.T) {
	acc := testAccumulator(t, false)
	acc.AddRuntime(1.0, 1) // forward passes happened, no labeled points

	cfg := acc.Config()
	rep, err := BuildReport(testGlobalMetrics(t, acc), cfg.Categories, cfg.SpeedBuckets, cfg.ErrorBuckets, "unit_test", 0)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	for name, v := range map[string]float64{
		"FullMoverEPE":     rep.FullMoverEPE,
		"FullNonmoverEPE":  rep.FullNonmoverEPE,
		"CloseMoverEPE":    rep.CloseMoverEPE,
		"CloseNonmoverEPE": rep.CloseNonmoverEPE,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, want finite", name, v)
		}
		if v != 0 {
			t.Errorf("%s = %v, want exactly 0 for empty slice", name, v)
		}
	}

	if got := rep.CellMeanEPE(ProximityClose, 0, 0, 0); got != 0 {
		t.Errorf("CellMeanEPE of empty cell = %v, want 0", got)
	}
}

func TestBuildReport_NoSamplesProcessed(t *testing.T) {
	acc := testAccumulator(t, false)
	cfg := acc.Config()
	_, err := BuildReport(testGlobalMetrics(t, acc), cfg.Categories, cfg.SpeedBuckets, cfg.ErrorBuckets, "unit_test", 0)
	if !errors.Is(err, ErrNoSamplesProcessed) {
		t.Errorf("err = %v, want ErrNoSamplesProcessed", err)
	}
}

func TestReport_WriteAndLoadRoundTrip(t *testing.T) {
	acc := testAccumulator(t, false)
	if err := acc.Update(ProximityClose, 1, 6.0, 0.25); err != nil {
		t.Fatalf("Update: %v", err)
	}
	acc.AddRuntime(1.0, 2)

	cfg := acc.Config()
	rep, err := BuildReport(testGlobalMetrics(t, acc), cfg.Categories, cfg.SpeedBuckets, cfg.ErrorBuckets, "roundtrip", 3)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}

	path := filepath.Join(t.TempDir(), "results", "roundtrip.json")
	if err := rep.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := LoadReportFile(path)
	if err != nil {
		t.Fatalf("LoadReportFile: %v", err)
	}
	if loaded.ConfigName != "roundtrip" || loaded.Epoch != 3 {
		t.Errorf("loaded name/epoch = %q/%d, want roundtrip/3", loaded.ConfigName, loaded.Epoch)
	}
	if loaded.CloseMoverEPE != rep.CloseMoverEPE {
		t.Errorf("CloseMoverEPE = %v, want %v", loaded.CloseMoverEPE, rep.CloseMoverEPE)
	}
	if len(loaded.ErrorSum) != rep.Dims.Size() || len(loaded.ErrorCount) != rep.Dims.Size() {
		t.Errorf("loaded tensors have %d/%d elements, want %d",
			len(loaded.ErrorSum), len(loaded.ErrorCount), rep.Dims.Size())
	}
}
