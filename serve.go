package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/jykim94/SceneFlowZoo/internal/db"
	"github.com/jykim94/SceneFlowZoo/internal/flow/monitor"
	"github.com/jykim94/SceneFlowZoo/internal/units"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", ":8080", "HTTP listen address")
	dbPath := fs.String("results-db", "flow_results.db", "path to the SQLite results database")
	speedUnits := fs.String("speed-units", units.MPS, "speed units for chart labels ("+units.GetValidUnitsString()+")")
	fs.Parse(args)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to results database: %v", err)
	}
	defer database.Close()

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:    *listen,
		DB:         database,
		SpeedUnits: *speedUnits,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ws.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
