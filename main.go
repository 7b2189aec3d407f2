// Command sceneflow evaluates and trains scene-flow models: it runs a
// configured model over a dataset, accumulates bucketed endpoint-error
// metrics, stores per-epoch reports in a SQLite database and serves
// them over HTTP.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jykim94/SceneFlowZoo/internal/db"
	"github.com/jykim94/SceneFlowZoo/internal/version"
)

const usage = `Usage: sceneflow <command> [options]

Commands:
  validate    Run a model over a test dataset and record the epoch report
  serve       Serve stored results over HTTP (JSON APIs and debug charts)
  report      Print stored reports for a run
  migrate     Manage the results database schema
  version     Print build information
  help        Show this help message

Run 'sceneflow <command> -h' for command options.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		runValidate(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("sceneflow %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("results-db", "flow_results.db", "path to the SQLite results database")
	fs.Parse(args)
	db.RunMigrateCommand(fs.Args(), *dbPath)
}
