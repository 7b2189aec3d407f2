// Package config loads run configurations: JSON files naming the model,
// the datasets, the metric bucketing and the training schedule for one
// evaluation or training run. Fields omitted from the JSON keep their
// defaults, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

// ComponentSpec names a registered component and its constructor args.
type ComponentSpec struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// RunConfig is the root configuration for a run.
type RunConfig struct {
	Name string `json:"name"`

	Model        ComponentSpec  `json:"model"`
	TestDataset  ComponentSpec  `json:"test_dataset"`
	TrainDataset *ComponentSpec `json:"train_dataset,omitempty"`

	// Training schedule
	IsTrainable   *bool    `json:"is_trainable,omitempty"`
	HasLabels     *bool    `json:"has_labels,omitempty"`
	LearningRate  *float64 `json:"learning_rate,omitempty"`
	Epochs        *int     `json:"epochs,omitempty"`
	ValidateEvery *int     `json:"validate_every,omitempty"`
	SaveEvery     *int     `json:"save_every,omitempty"`
	BatchSize     *int     `json:"batch_size,omitempty"`

	// Metric bucketing
	CloseObjectThresholdM *float64  `json:"close_object_threshold_m,omitempty"`
	FrameRateHz           *float64  `json:"frame_rate_hz,omitempty"`
	StrictBuckets         *bool     `json:"strict_buckets,omitempty"`
	SpeedBucketSplitsMPS  []float64 `json:"speed_bucket_splits_mps,omitempty"`
	EndpointErrorSplitsM  []float64 `json:"endpoint_error_splits_m,omitempty"`

	// Category table: class id (as string key) to name. Empty means the
	// built-in table. Background ids default to [-1].
	Categories            map[string]string `json:"categories,omitempty"`
	BackgroundCategoryIDs []int32           `json:"background_category_ids,omitempty"`

	// Output
	OutputDir *string `json:"output_dir,omitempty"`
	ResultsDB *string `json:"results_db,omitempty"`
	Workers   *int    `json:"workers,omitempty"`
}

// Load reads a RunConfig from a JSON file. The file must have a .json
// extension and be under the max file size.
func Load(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if cfg.Name == "" {
		base := filepath.Base(cleanPath)
		cfg.Name = base[:len(base)-len(filepath.Ext(base))]
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *RunConfig) Validate() error {
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.TestDataset.Name == "" {
		return fmt.Errorf("test_dataset.name is required")
	}
	if c.GetIsTrainable() && c.TrainDataset == nil {
		return fmt.Errorf("train_dataset is required when is_trainable is set")
	}
	if c.CloseObjectThresholdM != nil && *c.CloseObjectThresholdM <= 0 {
		return fmt.Errorf("close_object_threshold_m must be positive, got %f", *c.CloseObjectThresholdM)
	}
	if c.FrameRateHz != nil && *c.FrameRateHz <= 0 {
		return fmt.Errorf("frame_rate_hz must be positive, got %f", *c.FrameRateHz)
	}
	if c.LearningRate != nil && *c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", *c.LearningRate)
	}
	if c.Epochs != nil && *c.Epochs < 1 {
		return fmt.Errorf("epochs must be at least 1, got %d", *c.Epochs)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.BatchSize != nil && *c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", *c.BatchSize)
	}
	for _, splits := range [][]float64{c.SpeedBucketSplitsMPS, c.EndpointErrorSplitsM} {
		if splits == nil {
			continue
		}
		if _, err := flow.NewBucketSet(splits); err != nil {
			return err
		}
	}
	for key := range c.Categories {
		if _, err := strconv.ParseInt(key, 10, 32); err != nil {
			return fmt.Errorf("categories key %q is not an integer id", key)
		}
	}
	return nil
}

// GetIsTrainable returns whether the run trains the model before
// validating it. Defaults to false (evaluation only).
func (c *RunConfig) GetIsTrainable() bool {
	if c.IsTrainable == nil {
		return false
	}
	return *c.IsTrainable
}

// GetHasLabels returns whether the test dataset carries ground truth.
// Defaults to true; set false for leaderboard-style submission runs.
func (c *RunConfig) GetHasLabels() bool {
	if c.HasLabels == nil {
		return true
	}
	return *c.HasLabels
}

// GetLearningRate returns the learning_rate value or the default.
func (c *RunConfig) GetLearningRate() float64 {
	if c.LearningRate == nil {
		return 1e-4
	}
	return *c.LearningRate
}

// GetEpochs returns the epochs value or the default.
func (c *RunConfig) GetEpochs() int {
	if c.Epochs == nil {
		return 1
	}
	return *c.Epochs
}

// GetValidateEvery returns how many training epochs run between
// validation passes.
func (c *RunConfig) GetValidateEvery() int {
	if c.ValidateEvery == nil || *c.ValidateEvery < 1 {
		return 1
	}
	return *c.ValidateEvery
}

// GetSaveEvery returns how many epochs run between report saves.
func (c *RunConfig) GetSaveEvery() int {
	if c.SaveEvery == nil || *c.SaveEvery < 1 {
		return 1
	}
	return *c.SaveEvery
}

// GetBatchSize returns the batch_size value or the default.
func (c *RunConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 1
	}
	return *c.BatchSize
}

// GetCloseObjectThresholdM returns the close/far split distance.
func (c *RunConfig) GetCloseObjectThresholdM() float64 {
	if c.CloseObjectThresholdM == nil {
		return flow.DefaultCloseThresholdMeters
	}
	return *c.CloseObjectThresholdM
}

// GetFrameRateHz returns the sensor frame rate used to scale per-frame
// flow into speeds.
func (c *RunConfig) GetFrameRateHz() float64 {
	if c.FrameRateHz == nil {
		return flow.DefaultFramesPerSecond
	}
	return *c.FrameRateHz
}

// GetStrictBuckets returns whether out-of-range values fail the update
// instead of being dropped.
func (c *RunConfig) GetStrictBuckets() bool {
	if c.StrictBuckets == nil {
		return false
	}
	return *c.StrictBuckets
}

// GetSpeedBucketSplitsMPS returns the speed bucket boundaries in m/s.
func (c *RunConfig) GetSpeedBucketSplitsMPS() []float64 {
	if len(c.SpeedBucketSplitsMPS) == 0 {
		return []float64{0, 0.5, 2.0, 40.0}
	}
	return c.SpeedBucketSplitsMPS
}

// GetEndpointErrorSplitsM returns the endpoint error boundaries in
// metres.
func (c *RunConfig) GetEndpointErrorSplitsM() []float64 {
	if len(c.EndpointErrorSplitsM) == 0 {
		return []float64{0, 0.05, 0.1, 5.0}
	}
	return c.EndpointErrorSplitsM
}

// GetOutputDir returns where report JSON files are written.
func (c *RunConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "validation_results"
	}
	return *c.OutputDir
}

// GetResultsDB returns the path of the SQLite results database.
func (c *RunConfig) GetResultsDB() string {
	if c.ResultsDB == nil || *c.ResultsDB == "" {
		return "flow_results.db"
	}
	return *c.ResultsDB
}

// GetWorkers returns the number of validation workers.
func (c *RunConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// CategoryTable builds the class table for this run. An empty
// categories map selects the built-in table.
func (c *RunConfig) CategoryTable() (*flow.CategoryTable, error) {
	if len(c.Categories) == 0 {
		return flow.DefaultCategoryTable(), nil
	}

	cats := make([]flow.Category, 0, len(c.Categories))
	for key, name := range c.Categories {
		id, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("categories key %q is not an integer id", key)
		}
		cats = append(cats, flow.Category{ID: int32(id), Name: name})
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })

	background := c.BackgroundCategoryIDs
	if len(background) == 0 {
		background = []int32{flow.DefaultBackgroundID}
	}
	return flow.NewCategoryTable(cats, background)
}
