package meteo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/types"
)

const (
	mphToMS = 0.44704
	// Hourly buckets further than this from the overpass are not used for
	// the instantaneous conditions.
	maxOverpassGap = 90 * time.Minute
)

// Observation is one hourly aggregate row from a weather station.
type Observation struct {
	Bucket      time.Time
	Temperature float64
	Humidity    float64
	WindSpeed   float64
	SolarWatts  float64
}

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// StationProvider reads hourly aggregates from a TimescaleDB weather_1h
// continuous aggregate, as maintained by a remoteweather installation.
type StationProvider struct {
	db       rowQuerier
	pool     *pgxpool.Pool
	name     string
	station  Station
	height   float64
	imperial bool
}

// StationConfig configures a StationProvider.
type StationConfig struct {
	ConnectionString  string
	StationName       string
	Station           Station
	MeasurementHeight float64
	// Imperial marks temperatures in °F and wind in mph.
	Imperial bool
}

// NewStationProvider connects to the station database.
func NewStationProvider(ctx context.Context, cfg StationConfig) (*StationProvider, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to station database: %w", types.ErrUpstreamUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pinging station database: %w", types.ErrUpstreamUnavailable, err)
	}

	log.Infof("meteorology from station %q", cfg.StationName)
	return &StationProvider{
		db:       pool,
		pool:     pool,
		name:     cfg.StationName,
		station:  cfg.Station,
		height:   cfg.MeasurementHeight,
		imperial: cfg.Imperial,
	}, nil
}

// Close releases the connection pool.
func (p *StationProvider) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const observationsSQL = `
	SELECT bucket, outtemp, outhumidity, windspeed, COALESCE(solarwatts, 0)
	FROM weather_1h
	WHERE stationname = $1 AND bucket >= $2 AND bucket < $3
	  AND outtemp IS NOT NULL AND outhumidity IS NOT NULL AND windspeed IS NOT NULL
	ORDER BY bucket`

// ContextFor implements Provider.
func (p *StationProvider) ContextFor(ctx context.Context, meta types.SceneMetadata) (Context, error) {
	at := meta.Acquired.UTC()
	rows, err := p.db.Query(ctx, observationsSQL, p.name, at.Add(-24*time.Hour), at.Add(time.Hour))
	if err != nil {
		return Context{}, fmt.Errorf("%w: querying weather_1h: %w", types.ErrUpstreamUnavailable, err)
	}

	obs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Observation, error) {
		var o Observation
		err := row.Scan(&o.Bucket, &o.Temperature, &o.Humidity, &o.WindSpeed, &o.SolarWatts)
		return o, err
	})
	if err != nil {
		return Context{}, fmt.Errorf("%w: reading weather_1h: %w", types.ErrUpstreamUnavailable, err)
	}

	if p.imperial {
		for i := range obs {
			obs[i].Temperature = (obs[i].Temperature - 32) * 5 / 9
			obs[i].WindSpeed *= mphToMS
		}
	}
	return FromObservations(obs, at, p.station, p.height)
}

// FromObservations derives the overpass context from metric hourly
// observations: conditions from the bucket nearest the overpass, daily
// terms from the trailing 24 h means.
func FromObservations(obs []Observation, at time.Time, st Station, height float64) (Context, error) {
	if len(obs) == 0 {
		return Context{}, fmt.Errorf("%w: no station observations around %s", types.ErrUpstreamUnavailable, at.Format(time.RFC3339))
	}

	nearest := obs[0]
	for _, o := range obs[1:] {
		if absDuration(o.Bucket.Add(30*time.Minute).Sub(at)) < absDuration(nearest.Bucket.Add(30*time.Minute).Sub(at)) {
			nearest = o
		}
	}
	if absDuration(nearest.Bucket.Add(30*time.Minute).Sub(at)) > maxOverpassGap {
		return Context{}, fmt.Errorf("%w: nearest observation %s is too far from overpass", types.ErrUpstreamUnavailable, nearest.Bucket.Format(time.RFC3339))
	}

	var sumT, sumRH, sumU, sumRs float64
	var n float64
	for _, o := range obs {
		if o.Bucket.After(at) {
			continue
		}
		sumT += o.Temperature
		sumRH += o.Humidity
		sumU += o.WindSpeed
		sumRs += o.SolarWatts
		n++
	}
	if n == 0 {
		n, sumT, sumRH, sumU, sumRs = 1, nearest.Temperature, nearest.Humidity, nearest.WindSpeed, nearest.SolarWatts
	}

	c := Context{
		AirTemperatureC:   nearest.Temperature,
		WindSpeed:         nearest.WindSpeed,
		RelativeHumidity:  math.Min(nearest.Humidity, 100),
		MeasurementHeight: height,
	}
	if err := c.Validate(); err != nil {
		return Context{}, err
	}

	c.ETrInstant = HourlyReferenceET(Conditions{
		Time: at, Latitude: st.Latitude, Longitude: st.Longitude, Elevation: st.Elevation,
		AirTemperatureC: c.AirTemperatureC, RelativeHumidity: c.RelativeHumidity,
		WindSpeed: c.WindSpeed, MeasurementHeight: c.Height(), SolarRadiation: nearest.SolarWatts,
	})

	daily := Conditions{
		Time: at, Latitude: st.Latitude, Longitude: st.Longitude, Elevation: st.Elevation,
		AirTemperatureC: sumT / n, RelativeHumidity: math.Min(sumRH/n, 100),
		WindSpeed: sumU / n, MeasurementHeight: c.Height(), SolarRadiation: sumRs / n,
	}
	c.ETr24 = DailyReferenceET(daily)
	c.Rn24 = DailyNetRadiation(daily)
	return c, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
