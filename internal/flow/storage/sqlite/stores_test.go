package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

func testReport(runID string, epoch int) *flow.Report {
	dims := flow.Dims{Proximities: 2, Categories: 2, SpeedBuckets: 2, ErrorBuckets: 1}
	return &flow.Report{
		RunID:                 runID,
		ConfigName:            "zeroflow_synthetic",
		Epoch:                 epoch,
		FullMoverEPE:          0.42,
		FullNonmoverEPE:       0.01,
		CloseMoverEPE:         0.40,
		CloseNonmoverEPE:      0.01,
		AverageForwardSeconds: 0.005,
		Dims:                  dims,
		ErrorSum:              make([]float64, dims.Size()),
		ErrorCount:            make([]int64, dims.Size()),
		SpeedBucketSplits:     []float64{0, 0.5, 40},
		ErrorBucketSplits:     []float64{0, 5},
		Categories: []flow.Category{
			{ID: flow.DefaultBackgroundID, Name: "BACKGROUND"},
			{ID: 1, Name: "CAR"},
		},
	}
}

func TestRunStore_InsertGetList(t *testing.T) {
	store := NewRunStore(setupTestDB(t))

	run := &Run{ConfigName: "zeroflow_synthetic", Model: "ZeroFlow", Dataset: "Synthetic", WorldSize: 2}
	require.NoError(t, store.Insert(run))
	require.NotEmpty(t, run.RunID)
	require.NotZero(t, run.CreatedAt)

	got, err := store.Get(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	runs, err := store.List()
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunStore_GetMissing(t *testing.T) {
	store := NewRunStore(setupTestDB(t))
	_, err := store.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunStore_Delete(t *testing.T) {
	store := NewRunStore(setupTestDB(t))
	run := &Run{ConfigName: "c", Model: "ZeroFlow", Dataset: "Synthetic", WorldSize: 1}
	require.NoError(t, store.Insert(run))
	require.NoError(t, store.Delete(run.RunID))
	assert.Error(t, store.Delete(run.RunID), "second Delete should report not found")
}

func TestReportStore_InsertGet(t *testing.T) {
	sqlDB := setupTestDB(t)
	runs := NewRunStore(sqlDB)
	reports := NewReportStore(sqlDB)

	run := &Run{ConfigName: "zeroflow_synthetic", Model: "ZeroFlow", Dataset: "Synthetic", WorldSize: 1}
	require.NoError(t, runs.Insert(run))

	report := testReport(run.RunID, 0)
	require.NoError(t, reports.Insert(report))
	require.NotEmpty(t, report.ReportID)
	require.NotZero(t, report.CreatedAt)

	got, err := reports.Get(report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, report, got)
}

func TestReportStore_InsertRequiresRunID(t *testing.T) {
	reports := NewReportStore(setupTestDB(t))
	assert.Error(t, reports.Insert(testReport("", 0)))
}

func TestReportStore_ListByRunAndLatest(t *testing.T) {
	sqlDB := setupTestDB(t)
	runs := NewRunStore(sqlDB)
	reports := NewReportStore(sqlDB)

	run := &Run{ConfigName: "c", Model: "ZeroFlow", Dataset: "Synthetic", WorldSize: 1}
	require.NoError(t, runs.Insert(run))

	// Insert epochs out of order; ListByRun must sort by epoch.
	for i, epoch := range []int{2, 0, 1} {
		r := testReport(run.RunID, epoch)
		r.CreatedAt = int64(1000 + i)
		require.NoError(t, reports.Insert(r))
	}

	listed, err := reports.ListByRun(run.RunID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, r := range listed {
		assert.Equal(t, i, r.Epoch, "listed[%d]", i)
	}

	latest, err := reports.Latest(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Epoch, "most recent created_at wins")

	_, err = reports.Latest("no-such-run")
	assert.Error(t, err)
}

func TestRunDelete_CascadesReports(t *testing.T) {
	sqlDB := setupTestDB(t)
	runs := NewRunStore(sqlDB)
	reports := NewReportStore(sqlDB)

	run := &Run{ConfigName: "c", Model: "ZeroFlow", Dataset: "Synthetic", WorldSize: 1}
	require.NoError(t, runs.Insert(run))
	report := testReport(run.RunID, 0)
	require.NoError(t, reports.Insert(report))

	require.NoError(t, runs.Delete(run.RunID))
	_, err := reports.Get(report.ReportID)
	assert.Error(t, err, "report should not survive run deletion")
}
