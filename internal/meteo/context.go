// Package meteo supplies the per-scene meteorological context: air
// temperature, wind, humidity, daily net radiation and reference ET.
package meteo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/sebal/internal/types"
)

// ErrInvalidContext marks a meteorological context that cannot drive the
// energy balance.
var ErrInvalidContext = errors.New("invalid meteorological context")

// DefaultMeasurementHeight is the standard screen height in m.
const DefaultMeasurementHeight = 2.0

// Context holds the station conditions at scene overpass. Zero ETrInstant,
// ETr24 or Rn24 means "derive it" (see Complete).
type Context struct {
	AirTemperatureC   float64 `yaml:"air_temperature_c" json:"air_temperature_c" msgpack:"air_temperature_c"`
	WindSpeed         float64 `yaml:"wind_speed" json:"wind_speed" msgpack:"wind_speed"`
	RelativeHumidity  float64 `yaml:"relative_humidity" json:"relative_humidity" msgpack:"relative_humidity"`
	Rn24              float64 `yaml:"rn24" json:"rn24" msgpack:"rn24"`
	ETrInstant        float64 `yaml:"etr_instant" json:"etr_instant" msgpack:"etr_instant"`
	ETr24             float64 `yaml:"etr24" json:"etr24" msgpack:"etr24"`
	MeasurementHeight float64 `yaml:"measurement_height" json:"measurement_height" msgpack:"measurement_height"`
}

// Station locates the weather station. Elevation is in m.
type Station struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Elevation float64 `yaml:"elevation" json:"elevation"`
}

// Provider returns the context for a scene's overpass.
type Provider interface {
	ContextFor(ctx context.Context, meta types.SceneMetadata) (Context, error)
}

// Height returns the wind measurement height, defaulting to 2 m.
func (c Context) Height() float64 {
	if c.MeasurementHeight <= 0 {
		return DefaultMeasurementHeight
	}
	return c.MeasurementHeight
}

// Validate rejects physically impossible values. Zero wind is allowed; it
// degenerates the sensible heat solver pixel by pixel rather than failing.
func (c Context) Validate() error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	for name, v := range map[string]float64{
		"air temperature": c.AirTemperatureC, "wind speed": c.WindSpeed,
		"relative humidity": c.RelativeHumidity, "Rn24": c.Rn24,
		"instantaneous ETr": c.ETrInstant, "daily ETr": c.ETr24,
		"measurement height": c.MeasurementHeight,
	} {
		if !finite(v) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidContext, name)
		}
	}

	switch {
	case c.AirTemperatureC < -60 || c.AirTemperatureC > 60:
		return fmt.Errorf("%w: air temperature %.1f °C out of range", ErrInvalidContext, c.AirTemperatureC)
	case c.WindSpeed < 0:
		return fmt.Errorf("%w: negative wind speed", ErrInvalidContext)
	case c.RelativeHumidity <= 0 || c.RelativeHumidity > 100:
		return fmt.Errorf("%w: relative humidity %.1f%% out of range", ErrInvalidContext, c.RelativeHumidity)
	case c.MeasurementHeight < 0:
		return fmt.Errorf("%w: negative measurement height", ErrInvalidContext)
	case c.ETrInstant < 0 || c.ETr24 < 0:
		return fmt.Errorf("%w: negative reference ET", ErrInvalidContext)
	}
	return nil
}

// Complete fills the derived fields of c for an overpass at t. rs and rs24
// are measured solar radiation in W/m² at overpass and as a 24 h mean;
// values <= 0 fall back to clear-sky radiation.
func Complete(c Context, st Station, t time.Time, rs, rs24 float64) Context {
	cond := Conditions{
		Time:              t,
		Latitude:          st.Latitude,
		Longitude:         st.Longitude,
		Elevation:         st.Elevation,
		AirTemperatureC:   c.AirTemperatureC,
		RelativeHumidity:  c.RelativeHumidity,
		WindSpeed:         c.WindSpeed,
		MeasurementHeight: c.Height(),
	}

	if c.ETrInstant == 0 {
		cond.SolarRadiation = rs
		c.ETrInstant = HourlyReferenceET(cond)
	}

	cond.SolarRadiation = rs24
	if c.ETr24 == 0 {
		c.ETr24 = DailyReferenceET(cond)
	}
	if c.Rn24 == 0 {
		c.Rn24 = DailyNetRadiation(cond)
	}
	return c
}
