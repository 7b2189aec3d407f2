package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/jykim94/SceneFlowZoo/internal/config"
	"github.com/jykim94/SceneFlowZoo/internal/db"
	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/flow/monitor"
	"github.com/jykim94/SceneFlowZoo/internal/flow/pipeline"
	"github.com/jykim94/SceneFlowZoo/internal/flow/storage/sqlite"
	"github.com/jykim94/SceneFlowZoo/internal/monitoring"
	"github.com/jykim94/SceneFlowZoo/internal/units"
)

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the run configuration JSON (required)")
	resultsDB := fs.String("results-db", "", "override the results database path")
	outputDir := fs.String("output-dir", "", "override the report output directory")
	plots := fs.Bool("plots", false, "render a PNG plot of each epoch report")
	speedUnits := fs.String("speed-units", units.MPS, "speed units for plot labels ("+units.GetValidUnitsString()+")")
	verbose := fs.Bool("verbose", false, "log per-batch progress")
	noDB := fs.Bool("no-db", false, "skip persisting the run to the results database")
	fs.Parse(args)

	if *configPath == "" {
		log.Fatal("-config is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *resultsDB != "" {
		cfg.ResultsDB = resultsDB
	}
	if *outputDir != "" {
		cfg.OutputDir = outputDir
	}
	monitoring.SetVerbose(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts pipeline.Options
	if !*noDB {
		database, err := db.NewDB(cfg.GetResultsDB())
		if err != nil {
			log.Fatalf("Failed to connect to results database: %v", err)
		}
		defer database.Close()

		run := &sqlite.Run{
			ConfigName: cfg.Name,
			Model:      cfg.Model.Name,
			Dataset:    cfg.TestDataset.Name,
			WorldSize:  cfg.GetWorkers(),
		}
		if err := sqlite.NewRunStore(database.DB).Insert(run); err != nil {
			log.Fatalf("Failed to record run: %v", err)
		}
		log.Printf("Recording run %s (%s: %s on %s)", run.RunID, cfg.Name, cfg.Model.Name, cfg.TestDataset.Name)
		opts.Reports = sqlite.NewReportStore(database.DB)
		opts.RunID = run.RunID
	}
	if *plots {
		opts.Plotter = monitor.NewReportPlotter(cfg.GetOutputDir(), *speedUnits)
	}

	var report *flow.Report
	if cfg.GetIsTrainable() {
		// Training runs on a single worker; validation inside the loop
		// still goes through the epoch-end gather.
		w, err := pipeline.Assemble(cfg, opts)
		if err != nil {
			log.Fatalf("Failed to assemble run: %v", err)
		}
		report, err = w.Train(ctx)
		if err != nil {
			log.Fatalf("Training failed: %v", err)
		}
	} else {
		report, err = pipeline.RunDistributedValidation(ctx, cfg, opts, 0)
		if err != nil {
			log.Fatalf("Validation failed: %v", err)
		}
	}

	if report == nil {
		log.Fatal("No report produced")
	}
	log.Printf("Done: reports written to %s", cfg.GetOutputDir())
}
