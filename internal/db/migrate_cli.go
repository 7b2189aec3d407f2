package db

import (
	"fmt"
	"log"
	"os"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	action := args[0]

	// Open without running migrations; the subcommands manage the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied successfully")
		version, dirty, _ := database.MigrateVersion()
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Migration rolled back successfully")
		version, dirty, _ := database.MigrateVersion()
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "status":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		files, err := MigrationFiles()
		if err != nil {
			log.Fatalf("Failed to list migrations: %v", err)
		}
		fmt.Println("=== Migration Status ===")
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Dirty: %v\n", dirty)
		fmt.Printf("Embedded migration files: %d\n", len(files))
		if dirty {
			fmt.Println()
			fmt.Println("WARNING: a migration failed mid-execution.")
			fmt.Println("Inspect the database, fix any issues, then run: migrate force <version>")
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Usage: migrate force <version_number>")
		}
		var forceVersion int
		if _, err := fmt.Sscanf(args[1], "%d", &forceVersion); err != nil {
			log.Fatalf("Invalid version number: %s", args[1])
		}
		if err := database.MigrateForce(forceVersion); err != nil {
			log.Fatalf("Force migration failed: %v", err)
		}
		log.Printf("Migration version forced to %d", forceVersion)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Results Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: sceneflow migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Rollback one migration")
	fmt.Println("  status          Show current migration status and version")
	fmt.Println("  force <N>       Force migration version to N (recovery only)")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --results-db <path>    Path to database file (default: flow_results.db)")
}
