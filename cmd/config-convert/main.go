package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/sebal/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	if *dryRun {
		fmt.Println("DRY RUN - No changes will be made")
	}

	fmt.Printf("Loading YAML configuration...\n")
	configData, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configData.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Loading configuration into SQLite database...\n")
	if err := loadConfigIntoSQLite(*sqliteFile, configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration into SQLite: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", *sqliteFile)
}

func loadConfigIntoSQLite(dbPath string, configData *config.ConfigData) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// The provider applies the embedded schema migrations on open.
	sqliteProvider, err := config.NewSQLiteProvider(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite provider: %w", err)
	}
	defer sqliteProvider.Close()

	if err := sqliteProvider.SaveConfig(configData); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("  Configuration successfully inserted into database\n")
	return nil
}

func printConfigSummary(c *config.ConfigData) {
	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("Job: path %03d row %03d, %s to %s, cloud max %.0f%%\n",
		c.Job.Path, c.Job.Row, c.Job.StartDate, c.Job.EndDate, c.Job.CloudMax)
	if len(c.Job.Sensors) > 0 {
		fmt.Printf("  Sensors: %v\n", c.Job.Sensors)
	}

	fmt.Printf("\nEngine: %s, %d iterations, cold NDVI %.0f%%, hot NDVI %.0f%%\n",
		c.Engine.ETMethod, c.Engine.Solver.Iterations, c.Engine.Endmember.ColdNDVIPercent, c.Engine.Endmember.HotNDVIPercent)

	fmt.Printf("\nMeteorology: %s\n", c.Meteorology.Source)
	if c.Meteorology.Station != nil {
		fmt.Printf("  Station: %s\n", c.Meteorology.Station.Name)
	}
	fmt.Printf("  %d dated overrides\n", len(c.Meteorology.ByDate))

	fmt.Printf("\nImagery: %s\n", c.Imagery.Driver)

	fmt.Printf("\nStorage Backends:\n")
	if c.Storage.TimescaleDB != nil {
		fmt.Printf("  - TimescaleDB: %s\n", c.Storage.TimescaleDB.ConnectionString)
	} else {
		fmt.Printf("  - memory\n")
	}

	if c.REST != nil {
		fmt.Printf("\nREST server: %s:%d\n", c.REST.ListenAddr, c.REST.Port)
	}
	if c.Fields != nil {
		fmt.Printf("\nFields: schema %s table %q\n", c.Fields.Schema, c.Fields.Table)
	}
}
