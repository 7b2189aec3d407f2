package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jykim94/SceneFlowZoo/internal/flow"
)

// ReportStore provides persistence for evaluation reports. The headline
// scalars live in queryable columns; the full bucket tensor rides along
// as JSON in the same row.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a ReportStore backed by the given database.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Insert persists a report. RunID must reference an existing run. If
// ReportID is empty, a UUID is generated.
func (s *ReportStore) Insert(r *flow.Report) error {
	if r.RunID == "" {
		return fmt.Errorf("insert report: missing run id")
	}
	if r.ReportID == "" {
		r.ReportID = uuid.New().String()
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixNano()
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO flow_reports (
				report_id, run_id, config_name, epoch,
				full_mover_epe, full_nonmover_epe, close_mover_epe, close_nonmover_epe,
				average_forward_time, report_json, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ReportID, r.RunID, r.ConfigName, r.Epoch,
			r.FullMoverEPE, r.FullNonmoverEPE, r.CloseMoverEPE, r.CloseNonmoverEPE,
			r.AverageForwardSeconds, string(raw), r.CreatedAt,
		)
		return err
	})
}

// Get returns a single report by ID.
func (s *ReportStore) Get(reportID string) (*flow.Report, error) {
	row := s.db.QueryRow(`
		SELECT report_json FROM flow_reports WHERE report_id = ?`, reportID)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("report %s not found", reportID)
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return decodeReport(raw)
}

// ListByRun returns all reports for a run, ordered by epoch ascending.
func (s *ReportStore) ListByRun(runID string) ([]*flow.Report, error) {
	rows, err := s.db.Query(`
		SELECT report_json FROM flow_reports
		WHERE run_id = ?
		ORDER BY epoch ASC, created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []*flow.Report
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		r, err := decodeReport(raw)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Latest returns the most recently created report for a run.
func (s *ReportStore) Latest(runID string) (*flow.Report, error) {
	row := s.db.QueryRow(`
		SELECT report_json FROM flow_reports
		WHERE run_id = ?
		ORDER BY created_at DESC
		LIMIT 1`, runID)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no reports for run %s", runID)
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return decodeReport(raw)
}

func decodeReport(raw string) (*flow.Report, error) {
	var r flow.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
