// Package monitor provides the HTTP interface over the results
// database: run and report JSON APIs plus debug chart rendering.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jykim94/SceneFlowZoo/internal/db"
	"github.com/jykim94/SceneFlowZoo/internal/flow"
	sqlite "github.com/jykim94/SceneFlowZoo/internal/flow/storage/sqlite"
	"github.com/jykim94/SceneFlowZoo/internal/httputil"
	"github.com/jykim94/SceneFlowZoo/internal/monitoring"
	"github.com/jykim94/SceneFlowZoo/internal/units"
	"github.com/jykim94/SceneFlowZoo/internal/version"
)

// WebServer handles the HTTP interface for browsing evaluation results.
type WebServer struct {
	address    string
	server     *http.Server
	db         *db.DB
	runs       *sqlite.RunStore
	reports    *sqlite.ReportStore
	speedUnits string
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address    string
	DB         *db.DB
	SpeedUnits string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	speedUnits := config.SpeedUnits
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	ws := &WebServer{
		address:    config.Address,
		db:         config.DB,
		runs:       sqlite.NewRunStore(config.DB.DB),
		reports:    sqlite.NewReportStore(config.DB.DB),
		speedUnits: speedUnits,
	}
	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}
	return ws
}

// Start begins the HTTP server and blocks until ctx is cancelled, then
// shuts the server down. A listen failure returns immediately with the
// error instead of waiting for cancellation.
func (ws *WebServer) Start(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	monitoring.Logf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/flow/runs", ws.handleRuns)
	mux.HandleFunc("/api/flow/reports", ws.handleReports)
	mux.HandleFunc("/debug/charts/epe", ws.handleEPEChart)
	mux.HandleFunc("/debug/charts/history", ws.handleHistoryChart)
	mux.HandleFunc("/debug/dashboard", ws.handleDashboard)

	ws.db.AttachAdminRoutes(mux)

	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "version": version.Version})
}

// handleRuns returns the run list, or a single run when run_id is set.
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		run, err := ws.runs.Get(runID)
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, run)
		return
	}
	runs, err := ws.runs.List()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []*sqlite.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// handleReports returns reports for a run, a single report by id, or
// the run's latest report with latest=1.
func (ws *WebServer) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if reportID := r.URL.Query().Get("report_id"); reportID != "" {
		report, err := ws.reports.Get(reportID)
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, report)
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		httputil.BadRequest(w, "missing 'run_id' or 'report_id' parameter")
		return
	}
	if r.URL.Query().Get("latest") == "1" {
		report, err := ws.reports.Latest(runID)
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, report)
		return
	}
	reports, err := ws.reports.ListByRun(runID)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if reports == nil {
		reports = []*flow.Report{}
	}
	httputil.WriteJSONOK(w, reports)
}

// lookupChartReport resolves the report selected by report_id or
// run_id query params.
func (ws *WebServer) lookupChartReport(r *http.Request) (*flow.Report, error) {
	if reportID := r.URL.Query().Get("report_id"); reportID != "" {
		return ws.reports.Get(reportID)
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		runs, err := ws.runs.List()
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, errNoRuns
		}
		runID = runs[0].RunID
	}
	return ws.reports.Latest(runID)
}
