package datasets

import (
	"math"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

func TestRegistry_UnknownName(t *testing.T) {
	if _, err := New("NoSuchDataset", nil); err == nil {
		t.Fatal("expected error for unknown dataset name")
	}
	if !IsRegistered("Synthetic") || !IsRegistered("SequenceDirectory") {
		t.Errorf("built-in datasets missing from registry: %v", Names())
	}
}

func TestSynthetic_Deterministic(t *testing.T) {
	a, err := NewSynthetic(map[string]any{"seed": 7.0, "batches": 2.0})
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	b, err := NewSynthetic(map[string]any{"seed": 7.0, "batches": 2.0})
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	for i := 0; i < a.Batches(); i++ {
		ba, err := a.Batch(i)
		if err != nil {
			t.Fatalf("Batch(%d): %v", i, err)
		}
		bb, err := b.Batch(i)
		if err != nil {
			t.Fatalf("Batch(%d): %v", i, err)
		}
		if !reflect.DeepEqual(ba, bb) {
			t.Errorf("batch %d differs between identically seeded generators", i)
		}
	}
}

func TestSynthetic_GroundTruthConsistent(t *testing.T) {
	s, err := NewSynthetic(map[string]any{"speed_mps": 5.0})
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	batch, err := s.Batch(0)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	sample := batch.Samples[0]

	n := len(sample.Points[0])
	valid := make([]int, n)
	for i := range valid {
		valid[i] = i
	}
	points, gtFlow, classes, err := flow.DecodeSamplePair(sample, valid)
	if err != nil {
		t.Fatalf("DecodeSamplePair: %v", err)
	}
	if len(points) != n || len(gtFlow) != n || len(classes) != n {
		t.Fatalf("decoded lengths %d/%d/%d, want %d", len(points), len(gtFlow), len(classes), n)
	}

	// Background points are static, vehicle points move one frame step
	// at the configured speed (5 m/s at 10 Hz is 0.5 m per frame).
	sawVehicle := false
	for i, class := range classes {
		speed := gtFlow[i].Norm() * 10.0
		if class == flow.DefaultBackgroundID {
			if speed != 0 {
				t.Fatalf("background point %d has speed %v, want 0", i, speed)
			}
			continue
		}
		sawVehicle = true
		if math.Abs(speed-5.0) > 1e-9 {
			t.Errorf("vehicle point %d has speed %v, want 5.0", i, speed)
		}
	}
	if !sawVehicle {
		t.Error("no vehicle points generated")
	}
}

func TestSynthetic_BatchOutOfRange(t *testing.T) {
	s, err := NewSynthetic(map[string]any{"batches": 2.0})
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	if _, err := s.Batch(2); err == nil {
		t.Error("expected error for batch index past the end")
	}
	if _, err := s.Batch(-1); err == nil {
		t.Error("expected error for negative batch index")
	}
}

func TestSequenceDirectory_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	gen, err := NewSynthetic(map[string]any{"batches": 3.0, "ground_points": 10.0, "cluster_points": 4.0})
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	var want []*flow.Batch
	for i := 0; i < gen.Batches(); i++ {
		batch, err := gen.Batch(i)
		if err != nil {
			t.Fatalf("Batch(%d): %v", i, err)
		}
		want = append(want, batch)
		path := filepath.Join(dir, filepath.Base(dir)+"_"+string(rune('a'+i))+".json")
		if err := WriteSequenceFile(path, batch.Samples[0]); err != nil {
			t.Fatalf("WriteSequenceFile: %v", err)
		}
	}

	ds, err := New("SequenceDirectory", map[string]any{"root": dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ds.Batches() != 3 {
		t.Fatalf("Batches() = %d, want 3", ds.Batches())
	}
	for i := 0; i < ds.Batches(); i++ {
		got, err := ds.Batch(i)
		if err != nil {
			t.Fatalf("Batch(%d): %v", i, err)
		}
		if !reflect.DeepEqual(got, want[i]) {
			t.Errorf("batch %d does not round-trip through the sequence file", i)
		}
	}
}

func TestSequenceDirectory_Limit(t *testing.T) {
	dir := t.TempDir()
	gen, err := NewSynthetic(map[string]any{"ground_points": 5.0, "cluster_points": 2.0, "clusters": 1.0})
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	batch, err := gen.Batch(0)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	for _, name := range []string{"000.json", "001.json", "002.json"} {
		if err := WriteSequenceFile(filepath.Join(dir, name), batch.Samples[0]); err != nil {
			t.Fatalf("WriteSequenceFile: %v", err)
		}
	}

	ds, err := NewSequenceDirectory(map[string]any{"root": dir, "limit": 2.0})
	if err != nil {
		t.Fatalf("NewSequenceDirectory: %v", err)
	}
	if ds.Batches() != 2 {
		t.Errorf("Batches() = %d, want 2", ds.Batches())
	}
}

func TestSequenceDirectory_Errors(t *testing.T) {
	if _, err := NewSequenceDirectory(map[string]any{}); err == nil {
		t.Error("expected error for missing root")
	}
	if _, err := NewSequenceDirectory(map[string]any{"root": t.TempDir()}); err == nil {
		t.Error("expected error for directory with no json files")
	}
}
