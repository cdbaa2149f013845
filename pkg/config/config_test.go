package config

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/sebal"
	"github.com/chrissnell/sebal/internal/types"
	"github.com/chrissnell/sebal/pkg/migrate"
)

const testFootprint = `{"type":"Polygon","coordinates":[[[0,0],[150,0],[150,-120],[0,-120],[0,0]]]}`

const testYAML = `
job:
  path: 222
  row: 81
  footprint: '` + testFootprint + `'
  start_date: "2024-01-01"
  end_date: "2024-03-31"
  sensors: ["L8", "LANDSAT_9"]
engine:
  solver:
    iterations: 20
meteorology:
  site:
    latitude: -34.5
    longitude: -58.4
    elevation: 25
  static:
    air_temperature_c: 28
    wind_speed: 3
    relative_humidity: 45
  by_date:
    "2024-01-15":
      air_temperature_c: 31
      wind_speed: 2
      relative_humidity: 40
imagery:
  driver: sqlite
  dsn: /var/lib/sebal/scenes.db
rest:
  port: 9090
workers: 4
`

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestYAMLProviderDefaults(t *testing.T) {
	p := NewYAMLProvider(writeYAML(t, testYAML))
	c, err := p.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if c.Engine.Solver.Iterations != 20 {
		t.Errorf("iterations = %d, want 20", c.Engine.Solver.Iterations)
	}
	if c.Engine.Endmember.ColdNDVIPercent != 5 || c.Engine.Endmember.HotLSTPercentile != 20 {
		t.Errorf("endmember defaults not applied: %+v", c.Engine.Endmember)
	}
	if c.Engine.ETMethod != sebal.ReferenceFraction || c.Engine.Longwave != sebal.LongwaveAirTemperature {
		t.Errorf("method defaults = %q / %q", c.Engine.ETMethod, c.Engine.Longwave)
	}
	if c.Job.CloudMax != DefaultCloudMax || c.Meteorology.Source != "static" {
		t.Errorf("job/meteorology defaults = %v / %q", c.Job.CloudMax, c.Meteorology.Source)
	}
	if c.REST == nil || c.REST.Port != 9090 || c.REST.ListenAddr != "0.0.0.0" {
		t.Errorf("rest = %+v", c.REST)
	}
	if c.Meteorology.ByDate["2024-01-15"].AirTemperatureC != 31 {
		t.Errorf("by_date override lost: %+v", c.Meteorology.ByDate)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	job, _ := p.GetJob()
	gens, err := job.SensorGenerations()
	if err != nil {
		t.Fatal(err)
	}
	if len(gens) != 2 || gens[0] != types.Landsat8 || gens[1] != types.Landsat9 {
		t.Errorf("sensors = %v", gens)
	}
	dr, err := job.DateRange()
	if err != nil {
		t.Fatal(err)
	}
	if !dr.End.Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end date should be inclusive, got exclusive bound %v", dr.End)
	}
	fp, err := job.FootprintPolygon()
	if err != nil {
		t.Fatal(err)
	}
	if fp.Path != 222 || len(fp.Polygon[0]) != 5 {
		t.Errorf("footprint = %+v", fp)
	}
}

func TestYAMLProviderRejectsUnknownKeys(t *testing.T) {
	if _, err := NewYAMLProvider(writeYAML(t, "job:\n  pth: 1\n")).LoadConfig(); err == nil {
		t.Error("typo in key accepted")
	}
}

func TestValidate(t *testing.T) {
	base := func() *ConfigData {
		c := &ConfigData{
			Job:     JobData{Footprint: testFootprint},
			Imagery: ImageryData{Driver: "synthetic"},
		}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name   string
		mutate func(*ConfigData)
		ok     bool
	}{
		{"defaults", func(*ConfigData) {}, true},
		{"station without connection", func(c *ConfigData) { c.Meteorology.Source = "station" }, false},
		{"unknown meteorology", func(c *ConfigData) { c.Meteorology.Source = "satellite" }, false},
		{"sqlite without dsn", func(c *ConfigData) { c.Imagery.Driver = "sqlite" }, false},
		{"no footprint", func(c *ConfigData) { c.Job.Footprint = "" }, false},
		{"footprint from fields", func(c *ConfigData) { c.Job.Footprint = ""; c.Fields = &FieldsData{Schema: "carballal"} }, true},
		{"cloud max", func(c *ConfigData) { c.Job.CloudMax = 120 }, false},
		{"bad sensor", func(c *ConfigData) { c.Job.Sensors = []string{"sentinel2"} }, false},
		{"bad percentile", func(c *ConfigData) { c.Engine.Endmember.HotNDVIPercent = 100 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestFootprintPolygonErrors(t *testing.T) {
	for _, fp := range []string{
		`not json`,
		`{"type":"Point","coordinates":[1,2]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`,
	} {
		if _, err := (JobData{Footprint: fp}).FootprintPolygon(); !errors.Is(err, types.ErrInvalidGeometry) {
			t.Errorf("%s: err = %v", fp, err)
		}
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.LoadConfig(); err == nil {
		t.Error("empty database returned a configuration")
	}

	in, err := NewYAMLProvider(writeYAML(t, testYAML)).LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	in.Storage.TimescaleDB = &TimescaleDBData{ConnectionString: "postgres://et@localhost/et"}
	in.Meteorology.Station = &StationData{ConnectionString: "postgres://wx@localhost/wx", Name: "field-1", Imperial: true}

	// Saving twice replaces the first copy.
	for i := 0; i < 2; i++ {
		if err := p.SaveConfig(in); err != nil {
			t.Fatal(err)
		}
	}

	out, err := p.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if out.Workers != 4 || out.Job.Path != 222 || out.Job.Footprint != testFootprint || len(out.Job.Sensors) != 2 {
		t.Errorf("job = %+v, workers = %d", out.Job, out.Workers)
	}
	if out.Engine != in.Engine {
		t.Errorf("engine = %+v, want %+v", out.Engine, in.Engine)
	}
	if out.Meteorology.Site != in.Meteorology.Site || out.Meteorology.Static != in.Meteorology.Static {
		t.Errorf("meteorology = %+v", out.Meteorology)
	}
	want := meteo.Context{AirTemperatureC: 31, WindSpeed: 2, RelativeHumidity: 40}
	if out.Meteorology.ByDate["2024-01-15"] != want {
		t.Errorf("override = %+v", out.Meteorology.ByDate)
	}
	if out.Meteorology.Station == nil || !out.Meteorology.Station.Imperial || out.Meteorology.Station.Name != "field-1" {
		t.Errorf("station = %+v", out.Meteorology.Station)
	}
	if out.Imagery != in.Imagery {
		t.Errorf("imagery = %+v", out.Imagery)
	}
	if out.Storage.TimescaleDB == nil || out.Storage.TimescaleDB.ConnectionString != "postgres://et@localhost/et" {
		t.Errorf("storage = %+v", out.Storage)
	}
	if out.REST == nil || *out.REST != *in.REST {
		t.Errorf("rest = %+v", out.REST)
	}
	if out.Fields != nil {
		t.Errorf("fields = %+v", out.Fields)
	}
}

func TestConfigMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.db")
	p, err := NewSQLiteProvider(path)
	if err != nil {
		t.Fatal(err)
	}
	p.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	migrations, err := Migrations()
	if err != nil {
		t.Fatal(err)
	}
	m := migrate.NewMigrator(db, migrations)

	current, st, err := m.Status()
	if err != nil {
		t.Fatal(err)
	}
	if current != 1 || len(st) == 0 || !st[0].Applied || st[0].Name != "initial schema" {
		t.Fatalf("status = %d %+v", current, st)
	}

	hasConfigs := func() bool {
		var n int
		if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'configs'`).Scan(&n); err != nil {
			t.Fatal(err)
		}
		return n == 1
	}

	if err := m.MigrateDown(0); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	if hasConfigs() {
		t.Error("configs table survived rollback")
	}
	if err := m.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if !hasConfigs() {
		t.Error("configs table missing after re-applying")
	}
}
