package app

import (
	"context"
	"errors"
	"testing"

	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/types"
	"github.com/chrissnell/sebal/pkg/config"
)

const testFootprint = `{"type":"Polygon","coordinates":[[[-58,-34],[-57.5,-34],[-57.5,-33.5],[-58,-33.5],[-58,-34]]]}`

func syntheticConfig() *config.ConfigData {
	cfg := &config.ConfigData{
		Job: config.JobData{
			Path:      225,
			Row:       84,
			Footprint: testFootprint,
			StartDate: "2024-01-01",
			EndDate:   "2024-02-29",
			Sensors:   []string{"LANDSAT_8"},
		},
		Meteorology: config.MeteorologyData{
			Site: meteo.Station{Latitude: -33.75, Longitude: -57.75, Elevation: 40},
			Static: meteo.Context{
				AirTemperatureC:   27,
				WindSpeed:         3,
				RelativeHumidity:  55,
				Rn24:              190,
				ETrInstant:        0.75,
				ETr24:             7.5,
				MeasurementHeight: 2,
			},
		},
		Imagery: config.ImageryData{Driver: "synthetic"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestRunSynthetic(t *testing.T) {
	a := New(syntheticConfig(), Options{}, log.Nop())
	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rep := a.Report()
	if rep.RunID == "" {
		t.Error("missing run id")
	}
	if rep.Scenes != 4 {
		t.Errorf("scenes = %d, want 4", rep.Scenes)
	}
	if len(rep.Results) != 4 || len(rep.Skips) != 0 {
		t.Fatalf("results = %d, skips = %d (%v)", len(rep.Results), len(rep.Skips), rep.Skips)
	}
	for i := 1; i < len(rep.Results); i++ {
		if !rep.Results[i].Scene.Acquired.After(rep.Results[i-1].Scene.Acquired) {
			t.Errorf("results out of order at %d", i)
		}
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := syntheticConfig()
	cfg.Imagery.Driver = "gdal"
	if err := New(cfg, Options{}, log.Nop()).Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown imagery driver")
	}
}

func TestBuildJob(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		job, err := New(syntheticConfig(), Options{}, log.Nop()).buildJob(context.Background())
		if err != nil {
			t.Fatalf("buildJob: %v", err)
		}
		if job.Footprint.Path != 225 || job.Footprint.Row != 84 {
			t.Errorf("footprint = %s", job.Footprint)
		}
		if got := job.Dates.End.Format("2006-01-02"); got != "2024-03-01" {
			t.Errorf("end = %s, want 2024-03-01", got)
		}
		if job.CloudMax != config.DefaultCloudMax {
			t.Errorf("cloud max = %v", job.CloudMax)
		}
	})

	t.Run("no dates", func(t *testing.T) {
		cfg := syntheticConfig()
		cfg.Job.StartDate, cfg.Job.EndDate = "", ""
		if _, err := New(cfg, Options{}, log.Nop()).buildJob(context.Background()); err == nil {
			t.Fatal("expected error without dates")
		}
	})

	t.Run("bad footprint", func(t *testing.T) {
		cfg := syntheticConfig()
		cfg.Job.Footprint = `{"type":"Point","coordinates":[0,0]}`
		_, err := New(cfg, Options{}, log.Nop()).buildJob(context.Background())
		if !errors.Is(err, types.ErrInvalidGeometry) {
			t.Fatalf("err = %v, want ErrInvalidGeometry", err)
		}
	})
}

func TestSyntheticSource(t *testing.T) {
	job, err := New(syntheticConfig(), Options{}, log.Nop()).buildJob(context.Background())
	if err != nil {
		t.Fatalf("buildJob: %v", err)
	}
	src, err := SyntheticSource(job, 40)
	if err != nil {
		t.Fatalf("SyntheticSource: %v", err)
	}

	scenes, err := src.QueryScenes(context.Background(), job.Footprint, job.Dates, types.Landsat8)
	if err != nil {
		t.Fatalf("QueryScenes: %v", err)
	}
	if len(scenes) != 4 {
		t.Fatalf("scenes = %d, want 4", len(scenes))
	}
	g := scenes[0].Grid
	if g.Rows != syntheticSize || g.Cols != syntheticSize {
		t.Errorf("grid = %dx%d", g.Rows, g.Cols)
	}
	if g.Transform[0] != -58 || g.Transform[3] != -33.5 {
		t.Errorf("origin = (%v, %v)", g.Transform[0], g.Transform[3])
	}

	dem, err := src.LoadDEM(context.Background(), job.Footprint, g)
	if err != nil {
		t.Fatalf("LoadDEM: %v", err)
	}
	if v, ok := dem.(*raster.Dense).At(scenes[0].Grid.PixelAt(0)); !ok || v != 40 {
		t.Errorf("elevation = %v, %v", v, ok)
	}
}
