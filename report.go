package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jykim94/SceneFlowZoo/internal/db"
	"github.com/jykim94/SceneFlowZoo/internal/flow"
	"github.com/jykim94/SceneFlowZoo/internal/flow/storage/sqlite"
)

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dbPath := fs.String("results-db", "flow_results.db", "path to the SQLite results database")
	runID := fs.String("run", "", "run id to show (default: the most recent run)")
	filePath := fs.String("file", "", "print a report snapshot file instead of querying the database")
	jsonOut := fs.Bool("json", false, "print the latest report as JSON instead of a table")
	fs.Parse(args)

	if *filePath != "" {
		report, err := flow.LoadReportFile(*filePath)
		if err != nil {
			log.Fatalf("Failed to load report file: %v", err)
		}
		if *jsonOut {
			printReportJSON(os.Stdout, report)
			return
		}
		printReportTable(os.Stdout, []*flow.Report{report})
		return
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to results database: %v", err)
	}
	defer database.Close()

	runs := sqlite.NewRunStore(database.DB)
	reports := sqlite.NewReportStore(database.DB)

	id := *runID
	if id == "" {
		all, err := runs.List()
		if err != nil {
			log.Fatalf("Failed to list runs: %v", err)
		}
		if len(all) == 0 {
			log.Fatal("No runs recorded yet")
		}
		id = all[0].RunID
	}

	run, err := runs.Get(id)
	if err != nil {
		log.Fatalf("Failed to load run: %v", err)
	}
	fmt.Printf("Run %s: %s (%s on %s, %d workers)\n\n",
		run.RunID, run.ConfigName, run.Model, run.Dataset, run.WorldSize)

	list, err := reports.ListByRun(id)
	if err != nil {
		log.Fatalf("Failed to list reports: %v", err)
	}
	if len(list) == 0 {
		log.Fatal("No reports recorded for this run yet")
	}

	if *jsonOut {
		printReportJSON(os.Stdout, list[len(list)-1])
		return
	}
	printReportTable(os.Stdout, list)
}

func printReportJSON(w io.Writer, report *flow.Report) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
}

func printReportTable(w io.Writer, reports []*flow.Report) {
	fmt.Fprintf(w, "%-6s  %-12s  %-12s  %-12s  %-12s  %s\n",
		"epoch", "mover", "mover/close", "nonmover", "nonm/close", "fwd avg (s)")
	for _, r := range reports {
		fmt.Fprintf(w, "%-6d  %-12.4f  %-12.4f  %-12.4f  %-12.4f  %.4f\n",
			r.Epoch, r.FullMoverEPE, r.CloseMoverEPE,
			r.FullNonmoverEPE, r.CloseNonmoverEPE, r.AverageForwardSeconds)
	}
}
