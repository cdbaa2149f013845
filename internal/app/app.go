// Package app wires configuration into a running ET job: imagery source,
// meteorology, result store, runner and the optional REST server.
package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/sebal/internal/fields"
	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/restserver"
	"github.com/chrissnell/sebal/internal/runner"
	"github.com/chrissnell/sebal/internal/storage"
	"github.com/chrissnell/sebal/internal/storage/timescaledb"
	"github.com/chrissnell/sebal/internal/types"
	"github.com/chrissnell/sebal/pkg/config"
)

// Options controls what Run does after the job completes.
type Options struct {
	// Serve keeps the REST server up until a signal arrives.
	Serve bool
}

// App represents the main application
type App struct {
	cfg     *config.ConfigData
	opts    Options
	logger  *zap.SugaredLogger
	report  runner.Report
	closers []func() error
}

// New creates a new application instance
func New(cfg *config.ConfigData, opts Options, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = log.GetSugaredLogger()
	}
	return &App{cfg: cfg, opts: opts, logger: logger}
}

// Report returns the outcome of the last run.
func (a *App) Report() runner.Report {
	return a.report
}

// Run processes the configured job and, when serving, blocks until
// shutdown.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	// Shutdown order: cancel, wait for the REST server, then close stores.
	defer a.close()
	defer func() {
		a.logger.Debug("waiting for all workers to terminate...")
		wg.Wait()
	}()
	defer cancel()

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	if a.cfg.REST != nil {
		rc := restserver.NewController(ctx, &wg, store, *a.cfg.REST, a.logger)
		if a.cfg.Fields != nil {
			rc.SetFieldSource(func(ctx context.Context) ([]fields.Field, error) {
				fs, _, err := a.loadFields(ctx)
				return fs, err
			})
		}
		if err := rc.StartController(); err != nil {
			return err
		}
	}

	job, err := a.buildJob(ctx)
	if err != nil {
		return err
	}
	src, err := a.openSource(ctx, job)
	if err != nil {
		return err
	}
	met, err := a.openMeteorology(ctx)
	if err != nil {
		return err
	}

	r := runner.New(src, met, store, runner.Options{
		Workers: a.cfg.Workers,
		Config:  a.cfg.Engine,
		Logger:  a.logger,
	})
	a.report, err = r.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("run %s: %w", a.report.RunID, err)
	}
	a.logger.Infow("job complete", "run", a.report.RunID, "scenes", a.report.Scenes,
		"processed", len(a.report.Results), "skipped", len(a.report.Skips))

	if a.cfg.REST != nil && a.opts.Serve {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			a.logger.Info("shutdown signal received, initiating graceful shutdown...")
		case <-ctx.Done():
			a.logger.Info("context cancelled, shutting down...")
		}
	}
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warnw("close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	if ts := a.cfg.Storage.TimescaleDB; ts != nil && ts.ConnectionString != "" {
		s, err := timescaledb.New(ctx, ts.ConnectionString)
		if err != nil {
			return nil, fmt.Errorf("opening result store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	a.logger.Info("no storage backend configured; keeping results in memory")
	return storage.NewMemoryStore(), nil
}

func (a *App) openSource(ctx context.Context, job runner.Job) (imagery.Source, error) {
	switch a.cfg.Imagery.Driver {
	case "synthetic":
		return SyntheticSource(job, a.cfg.Meteorology.Site.Elevation)
	default:
		s, err := imagery.OpenSQLStore(ctx, a.cfg.Imagery.Driver, a.cfg.Imagery.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (a *App) openMeteorology(ctx context.Context) (meteo.Provider, error) {
	m := a.cfg.Meteorology
	if m.Source != "station" {
		return &meteo.StaticProvider{Default: m.Static, ByDate: m.ByDate, Station: m.Site}, nil
	}

	p, err := meteo.NewStationProvider(ctx, meteo.StationConfig{
		ConnectionString:  m.Station.ConnectionString,
		StationName:       m.Station.Name,
		Station:           m.Site,
		MeasurementHeight: m.Station.MeasurementHeight,
		Imperial:          m.Station.Imperial,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { p.Close(); return nil })
	return p, nil
}

// buildJob resolves the footprint and date window, reading field
// boundaries from PostGIS when no footprint is configured.
func (a *App) buildJob(ctx context.Context) (runner.Job, error) {
	jc := a.cfg.Job
	job := runner.Job{CloudMax: jc.CloudMax}

	var err error
	if job.Sensors, err = jc.SensorGenerations(); err != nil {
		return job, err
	}

	var seasonTable string
	if jc.Footprint != "" {
		if job.Footprint, err = jc.FootprintPolygon(); err != nil {
			return job, err
		}
	} else {
		if job.Footprint, seasonTable, err = a.fieldFootprint(ctx); err != nil {
			return job, err
		}
	}

	switch {
	case jc.StartDate != "" || jc.EndDate != "":
		job.Dates, err = jc.DateRange()
	case seasonTable != "":
		seasons := fields.DefaultSeasons()
		if a.cfg.Fields.Seasons != nil {
			seasons = *a.cfg.Fields.Seasons
		}
		var ok bool
		if job.Dates, ok = fields.SeasonDates(seasonTable, seasons); !ok {
			err = fmt.Errorf("no dates configured and table %s names no season", seasonTable)
		}
	default:
		err = fmt.Errorf("job: start_date and end_date are required")
	}
	return job, err
}

func (a *App) fieldFootprint(ctx context.Context) (types.Footprint, string, error) {
	fs, table, err := a.loadFields(ctx)
	if err != nil {
		return types.Footprint{}, "", err
	}
	fp, err := fields.Footprint(fs, a.cfg.Job.Path, a.cfg.Job.Row, a.cfg.Fields.Buffer)
	return fp, table, err
}

// loadFields reads the configured field table, or the latest consolidated
// table of the schema when none is named.
func (a *App) loadFields(ctx context.Context) ([]fields.Field, string, error) {
	fc := a.cfg.Fields
	if fc == nil {
		return nil, "", fmt.Errorf("job: no footprint and no fields source")
	}

	loader, err := fields.Open(ctx, fc.ConnectionString, fc.Schema)
	if err != nil {
		return nil, "", err
	}
	defer loader.Close()

	table := fc.Table
	if table == "" {
		tables, err := loader.Tables(ctx)
		if err != nil {
			return nil, "", err
		}
		if len(tables) == 0 {
			return nil, "", fmt.Errorf("no consolidated field tables in schema %s", fc.Schema)
		}
		table = tables[len(tables)-1]
		a.logger.Infow("using field table", "schema", fc.Schema, "table", table, "available", len(tables))
	}

	fs, err := loader.Load(ctx, table)
	return fs, table, err
}

// Synthetic scenes are 10x10 pixels over the footprint bounds, one Landsat 8
// overpass every 16 days.
const (
	syntheticSize     = 10
	syntheticRevisit  = 16
	syntheticSunAngle = 55
)

// SyntheticSource builds an in-memory source covering the job, for dry
// runs without an imagery store.
func SyntheticSource(job runner.Job, elevation float64) (*imagery.MemorySource, error) {
	if err := job.Footprint.Validate(); err != nil {
		return nil, err
	}
	b := job.Footprint.Bound()
	g := raster.Grid{
		Rows: syntheticSize,
		Cols: syntheticSize,
		Transform: [6]float64{
			b.Min[0], (b.Max[0] - b.Min[0]) / syntheticSize, 0,
			b.Max[1], 0, -(b.Max[1] - b.Min[1]) / syntheticSize,
		},
	}

	src := imagery.NewMemorySource()
	dem, err := raster.Filled("elevation", g, elevation)
	if err != nil {
		return nil, err
	}
	src.SetDEM(job.Footprint, dem)

	days := int(math.Ceil(job.Dates.End.Sub(job.Dates.Start).Hours() / 24))
	for d := 0; d < days; d += syntheticRevisit {
		acquired := job.Dates.Start.AddDate(0, 0, d).Add(13 * time.Hour)
		meta := types.SceneMetadata{
			Sensor:       types.Landsat8,
			Acquired:     acquired,
			SunElevation: syntheticSunAngle,
			Path:         job.Footprint.Path,
			Row:          job.Footprint.Row,
			Grid:         g,
		}
		meta.ID = meta.OutputName()
		meta.ProductID = meta.ID + "_SYNTHETIC"
		sd, err := imagery.SyntheticScene(meta, 0)
		if err != nil {
			return nil, err
		}
		src.AddScene(sd)
	}
	return src, nil
}
