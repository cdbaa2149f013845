package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/chrissnell/sebal/internal/fields"
	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/sebal"
	"github.com/chrissnell/sebal/internal/types"
)

// DateLayout is the format of job dates.
const DateLayout = "2006-01-02"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetJob() (*JobData, error)
	GetStorageConfig() (*StorageData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Job         JobData         `yaml:"job" json:"job"`
	Engine      sebal.Config    `yaml:"engine" json:"engine"`
	Meteorology MeteorologyData `yaml:"meteorology" json:"meteorology"`
	Imagery     ImageryData     `yaml:"imagery" json:"imagery"`
	Storage     StorageData     `yaml:"storage,omitempty" json:"storage,omitempty"`
	REST        *RESTServerData `yaml:"rest,omitempty" json:"rest,omitempty"`
	Fields      *FieldsData     `yaml:"fields,omitempty" json:"fields,omitempty"`
	Workers     int             `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// JobData describes the collection to process. Footprint is a GeoJSON
// polygon in the scene CRS; when empty, the footprint comes from Fields.
// A zero path or row matches scenes of any path or row that cover the
// footprint.
type JobData struct {
	Path      int      `yaml:"path" json:"path"`
	Row       int      `yaml:"row" json:"row"`
	Footprint string   `yaml:"footprint,omitempty" json:"footprint,omitempty"`
	StartDate string   `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate   string   `yaml:"end_date,omitempty" json:"end_date,omitempty"`
	CloudMax  float64  `yaml:"cloud_max" json:"cloud_max"`
	Sensors   []string `yaml:"sensors,omitempty" json:"sensors,omitempty"`
}

// MeteorologyData selects the source of overpass conditions: "static"
// (default) or "station".
type MeteorologyData struct {
	Source  string                   `yaml:"source,omitempty" json:"source,omitempty"`
	Site    meteo.Station            `yaml:"site" json:"site"`
	Static  meteo.Context            `yaml:"static" json:"static"`
	ByDate  map[string]meteo.Context `yaml:"by_date,omitempty" json:"by_date,omitempty"`
	Station *StationData             `yaml:"station,omitempty" json:"station,omitempty"`
}

// StationData points at a remoteweather TimescaleDB.
type StationData struct {
	ConnectionString  string  `yaml:"connection_string" json:"connection_string"`
	Name              string  `yaml:"name" json:"name"`
	MeasurementHeight float64 `yaml:"measurement_height,omitempty" json:"measurement_height,omitempty"`
	Imperial          bool    `yaml:"imperial,omitempty" json:"imperial,omitempty"`
}

// ImageryData selects the scene store: "sqlite", "pgx" or "synthetic".
type ImageryData struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// StorageData holds the configuration for the result store. With no
// backend configured results are kept in memory.
type StorageData struct {
	TimescaleDB *TimescaleDBData `yaml:"timescaledb,omitempty" json:"timescaledb,omitempty"`
}

type TimescaleDBData struct {
	ConnectionString string `yaml:"connection_string" json:"connection_string"`
}

type RESTServerData struct {
	Cert       string `yaml:"cert,omitempty" json:"cert,omitempty"`
	Key        string `yaml:"key,omitempty" json:"key,omitempty"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty"`
	ListenAddr string `yaml:"listen_addr,omitempty" json:"listen_addr,omitempty"`
}

// FieldsData points at a PostGIS schema of consolidated field tables.
type FieldsData struct {
	ConnectionString string          `yaml:"connection_string" json:"connection_string"`
	Schema           string          `yaml:"schema" json:"schema"`
	Table            string          `yaml:"table" json:"table"`
	Buffer           float64         `yaml:"buffer,omitempty" json:"buffer,omitempty"`
	Seasons          *fields.Seasons `yaml:"seasons,omitempty" json:"seasons,omitempty"`
}

// Defaults applied by every provider.
const (
	DefaultCloudMax = 70
	DefaultRESTPort = 8080
)

// ApplyDefaults fills unset values.
func (c *ConfigData) ApplyDefaults() {
	c.Engine = c.Engine.WithDefaults()
	if c.Job.CloudMax == 0 {
		c.Job.CloudMax = DefaultCloudMax
	}
	if c.Meteorology.Source == "" {
		c.Meteorology.Source = "static"
	}
	if c.Imagery.Driver == "" {
		c.Imagery.Driver = "sqlite"
	}
	if c.REST != nil {
		if c.REST.ListenAddr == "" {
			c.REST.ListenAddr = "0.0.0.0"
		}
		if c.REST.Port == 0 {
			c.REST.Port = DefaultRESTPort
		}
	}
	if c.Fields != nil && c.Fields.Buffer == 0 {
		c.Fields.Buffer = fields.DefaultBuffer
	}
}

// Validate checks the configuration after defaults are applied.
func (c *ConfigData) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	switch c.Meteorology.Source {
	case "static":
	case "station":
		if c.Meteorology.Station == nil || c.Meteorology.Station.ConnectionString == "" {
			return fmt.Errorf("meteorology: station source requires station.connection_string")
		}
	default:
		return fmt.Errorf("meteorology: unknown source %q", c.Meteorology.Source)
	}
	switch c.Imagery.Driver {
	case "sqlite", "pgx":
		if c.Imagery.DSN == "" {
			return fmt.Errorf("imagery: driver %s requires a dsn", c.Imagery.Driver)
		}
	case "synthetic":
	default:
		return fmt.Errorf("imagery: unknown driver %q", c.Imagery.Driver)
	}
	if c.Job.Footprint == "" && c.Fields == nil {
		return fmt.Errorf("job: a footprint or a fields source is required")
	}
	if c.Job.CloudMax < 0 || c.Job.CloudMax > 100 {
		return fmt.Errorf("job: cloud_max must be in [0, 100]")
	}
	if _, err := c.Job.SensorGenerations(); err != nil {
		return fmt.Errorf("job: %w", err)
	}
	return nil
}

// FootprintPolygon parses the GeoJSON footprint.
func (j JobData) FootprintPolygon() (types.Footprint, error) {
	fp := types.Footprint{Path: j.Path, Row: j.Row}
	g, err := geojson.UnmarshalGeometry([]byte(j.Footprint))
	if err != nil {
		return fp, fmt.Errorf("%w: footprint: %w", types.ErrInvalidGeometry, err)
	}
	switch p := g.Geometry().(type) {
	case orb.Polygon:
		fp.Polygon = p
	case orb.MultiPolygon:
		if len(p) != 1 {
			return fp, fmt.Errorf("%w: footprint has %d polygons", types.ErrInvalidGeometry, len(p))
		}
		fp.Polygon = p[0]
	default:
		return fp, fmt.Errorf("%w: footprint is a %s", types.ErrInvalidGeometry, g.Type)
	}
	return fp, fp.Validate()
}

// DateRange parses the job window. The end date is included.
func (j JobData) DateRange() (types.DateRange, error) {
	start, err := time.Parse(DateLayout, j.StartDate)
	if err != nil {
		return types.DateRange{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := time.Parse(DateLayout, j.EndDate)
	if err != nil {
		return types.DateRange{}, fmt.Errorf("end_date: %w", err)
	}
	return types.DateRange{Start: start, End: end.AddDate(0, 0, 1)}, nil
}

// SensorGenerations parses the sensor list. Empty means every generation.
func (j JobData) SensorGenerations() ([]types.SensorGeneration, error) {
	if len(j.Sensors) == 0 {
		return nil, nil
	}
	out := make([]types.SensorGeneration, 0, len(j.Sensors))
	for _, s := range j.Sensors {
		g, err := types.ParseSensorGeneration(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
