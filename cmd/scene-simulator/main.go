// Package main fills an imagery store with synthetic Landsat 8 scenes covering
// a job's footprint and window, so a full run can be exercised end to end
// without real imagery.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/sebal/internal/app"
	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/runner"
	"github.com/chrissnell/sebal/internal/types"
	"github.com/chrissnell/sebal/pkg/config"
)

func main() {
	var (
		cfgFile   = flag.String("config", "config.yaml", "YAML configuration naming the job and the imagery store")
		driver    = flag.String("driver", "", "Override the imagery driver (sqlite, pgx)")
		dsn       = flag.String("dsn", "", "Override the imagery DSN")
		elevation = flag.Float64("elevation", -1, "DEM elevation in m (default: meteorology site elevation)")
		debug     = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.NewYAMLProvider(*cfgFile).LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *driver != "" {
		cfg.Imagery.Driver = *driver
	}
	if *dsn != "" {
		cfg.Imagery.DSN = *dsn
	}
	if *elevation < 0 {
		*elevation = cfg.Meteorology.Site.Elevation
	}

	if err := run(context.Background(), cfg, *elevation); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.ConfigData, elevation float64) error {
	if cfg.Imagery.Driver != "sqlite" && cfg.Imagery.Driver != "pgx" {
		return fmt.Errorf("imagery driver %q is not a persistent store", cfg.Imagery.Driver)
	}

	fp, err := cfg.Job.FootprintPolygon()
	if err != nil {
		return err
	}
	dates, err := cfg.Job.DateRange()
	if err != nil {
		return err
	}
	job := runner.Job{Footprint: fp, Dates: dates}

	src, err := app.SyntheticSource(job, elevation)
	if err != nil {
		return err
	}

	store, err := imagery.OpenSQLStore(ctx, cfg.Imagery.Driver, cfg.Imagery.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}

	scenes, err := src.QueryScenes(ctx, fp, dates, types.Landsat8)
	if err != nil {
		return err
	}
	for _, meta := range scenes {
		sd, err := src.LoadScene(ctx, meta)
		if err != nil {
			return err
		}
		if err := store.PutScene(ctx, sd); err != nil {
			return fmt.Errorf("storing %s: %w", meta.ID, err)
		}
		log.Infow("stored synthetic scene", "scene", meta.ID, "acquired", meta.Acquired)
	}

	if len(scenes) > 0 {
		dem, err := src.LoadDEM(ctx, fp, scenes[0].Grid)
		if err != nil {
			return err
		}
		if err := store.PutDEM(ctx, fp, dem); err != nil {
			return fmt.Errorf("storing elevation: %w", err)
		}
	}

	log.Infof("stored %d scenes for %s", len(scenes), fp)
	return nil
}
