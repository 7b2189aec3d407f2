package datasets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

func init() {
	Register("SequenceDirectory", func(args map[string]any) (Dataset, error) {
		return NewSequenceDirectory(args)
	})
}

// sequenceFile is the on-disk form of one sample: parallel frame stacks
// of points, ego-compensated flowed points and class ids. Coordinates
// are [x y z] metres in the sensor frame.
type sequenceFile struct {
	Points  [][][3]float64 `json:"points"`
	Flowed  [][][3]float64 `json:"flowed"`
	Classes [][]int32      `json:"classes"`
}

// SequenceDirectory serves samples from a directory of *.json files,
// one sample per file, ordered by file name. Files are read lazily on
// each Batch call so large datasets never sit in memory.
type SequenceDirectory struct {
	root  string
	files []string
}

// NewSequenceDirectory builds the dataset from config args: "root" is
// the directory to scan (required) and "limit" optionally caps the
// number of files used.
func NewSequenceDirectory(args map[string]any) (*SequenceDirectory, error) {
	root, ok := args["root"].(string)
	if !ok || root == "" {
		return nil, fmt.Errorf("sequence directory: missing required string arg %q", "root")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("sequence directory: reading %s: %w", root, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("sequence directory: no *.json files under %s", root)
	}
	if v, ok := args["limit"]; ok {
		f, ok := v.(float64)
		if !ok || f < 1 {
			return nil, fmt.Errorf("sequence directory: limit must be a positive number, got %v", v)
		}
		if n := int(f); n < len(files) {
			files = files[:n]
		}
	}
	return &SequenceDirectory{root: root, files: files}, nil
}

// Name implements Dataset.
func (d *SequenceDirectory) Name() string { return "SequenceDirectory" }

// Batches implements Dataset.
func (d *SequenceDirectory) Batches() int { return len(d.files) }

// Batch implements Dataset.
func (d *SequenceDirectory) Batch(i int) (*flow.Batch, error) {
	if i < 0 || i >= len(d.files) {
		return nil, fmt.Errorf("sequence directory: batch %d out of range [0,%d)", i, len(d.files))
	}
	path := filepath.Join(d.root, d.files[i])
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sequence directory: %w", err)
	}
	var file sequenceFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("sequence directory: decoding %s: %w", path, err)
	}
	sample, err := file.toSample()
	if err != nil {
		return nil, fmt.Errorf("sequence directory: %s: %w", d.files[i], err)
	}
	return &flow.Batch{Samples: []flow.Sample{sample}}, nil
}

func (f *sequenceFile) toSample() (flow.Sample, error) {
	if len(f.Points) < 2 {
		return flow.Sample{}, fmt.Errorf("sample has %d frames, need at least 2", len(f.Points))
	}
	if len(f.Flowed) != len(f.Points) || len(f.Classes) != len(f.Points) {
		return flow.Sample{}, fmt.Errorf("frame stacks disagree: %d points, %d flowed, %d classes",
			len(f.Points), len(f.Flowed), len(f.Classes))
	}
	sample := flow.Sample{
		Points:  make([]flow.PointCloud, len(f.Points)),
		Flowed:  make([]flow.PointCloud, len(f.Points)),
		Classes: make([]flow.ClassMask, len(f.Points)),
	}
	for t := range f.Points {
		if len(f.Flowed[t]) != len(f.Points[t]) || len(f.Classes[t]) != len(f.Points[t]) {
			return flow.Sample{}, fmt.Errorf("frame %d arrays disagree: %d points, %d flowed, %d classes",
				t, len(f.Points[t]), len(f.Flowed[t]), len(f.Classes[t]))
		}
		sample.Points[t] = toPointCloud(f.Points[t])
		sample.Flowed[t] = toPointCloud(f.Flowed[t])
		sample.Classes[t] = append(flow.ClassMask(nil), f.Classes[t]...)
	}
	return sample, nil
}

func toPointCloud(coords [][3]float64) flow.PointCloud {
	pc := make(flow.PointCloud, len(coords))
	for i, c := range coords {
		pc[i] = flow.Vec3{X: c[0], Y: c[1], Z: c[2]}
	}
	return pc
}

// WriteSequenceFile serializes sample to path in the directory format.
// It is used by dataset conversion tooling and tests.
func WriteSequenceFile(path string, sample flow.Sample) error {
	file := sequenceFile{
		Points:  make([][][3]float64, len(sample.Points)),
		Flowed:  make([][][3]float64, len(sample.Flowed)),
		Classes: make([][]int32, len(sample.Classes)),
	}
	for t := range sample.Points {
		file.Points[t] = fromPointCloud(sample.Points[t])
	}
	for t := range sample.Flowed {
		file.Flowed[t] = fromPointCloud(sample.Flowed[t])
	}
	for t := range sample.Classes {
		file.Classes[t] = append([]int32(nil), sample.Classes[t]...)
	}
	raw, err := json.Marshal(&file)
	if err != nil {
		return fmt.Errorf("writing sequence file: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func fromPointCloud(pc flow.PointCloud) [][3]float64 {
	coords := make([][3]float64, len(pc))
	for i, p := range pc {
		coords[i] = [3]float64{p.X, p.Y, p.Z}
	}
	return coords
}
