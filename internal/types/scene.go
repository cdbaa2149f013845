package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/chrissnell/sebal/internal/raster"
)

// SensorGeneration tags the satellite a scene came from.
type SensorGeneration string

const (
	Landsat5 SensorGeneration = "LANDSAT_5"
	Landsat7 SensorGeneration = "LANDSAT_7"
	Landsat8 SensorGeneration = "LANDSAT_8"
	Landsat9 SensorGeneration = "LANDSAT_9"
)

// AllSensors lists every supported generation in launch order.
var AllSensors = []SensorGeneration{Landsat5, Landsat7, Landsat8, Landsat9}

// SensorFamily groups generations sharing band layout and calibration.
type SensorFamily int

const (
	// FamilyA is the TM/ETM+ family (Landsat 5 and 7).
	FamilyA SensorFamily = iota + 1
	// FamilyB is the OLI/TIRS family (Landsat 8 and 9).
	FamilyB
)

func (f SensorFamily) String() string {
	switch f {
	case FamilyA:
		return "TM/ETM+"
	case FamilyB:
		return "OLI/TIRS"
	}
	return "unknown"
}

// Family returns the calibration family of the generation, or 0 when the
// tag is not supported.
func (s SensorGeneration) Family() SensorFamily {
	switch s {
	case Landsat5, Landsat7:
		return FamilyA
	case Landsat8, Landsat9:
		return FamilyB
	}
	return 0
}

// ParseSensorGeneration accepts the canonical tag or short forms like "L8"
// and "landsat8".
func ParseSensorGeneration(s string) (SensorGeneration, error) {
	norm := strings.ToUpper(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch norm {
	case "LANDSAT5", "L5", "LT05":
		return Landsat5, nil
	case "LANDSAT7", "L7", "LE07":
		return Landsat7, nil
	case "LANDSAT8", "L8", "LC08":
		return Landsat8, nil
	case "LANDSAT9", "L9", "LC09":
		return Landsat9, nil
	}
	return "", fmt.Errorf("unsupported sensor generation %q", s)
}

// SceneMetadata describes one acquisition. It is immutable once read from
// the imagery source.
type SceneMetadata struct {
	ID           string           `json:"id" msgpack:"id"`
	ProductID    string           `json:"product_id" msgpack:"product_id"`
	Sensor       SensorGeneration `json:"sensor" msgpack:"sensor"`
	Acquired     time.Time        `json:"acquired" msgpack:"acquired"`
	SunElevation float64          `json:"sun_elevation" msgpack:"sun_elevation"`
	SunAzimuth   float64          `json:"sun_azimuth" msgpack:"sun_azimuth"`
	CloudCover   float64          `json:"cloud_cover" msgpack:"cloud_cover"`
	Path         int              `json:"path" msgpack:"path"`
	Row          int              `json:"row" msgpack:"row"`
	Grid         raster.Grid      `json:"grid" msgpack:"grid"`
}

// SolarZenith returns the solar zenith angle in degrees.
func (m SceneMetadata) SolarZenith() float64 {
	return 90 - m.SunElevation
}

// OutputName builds the band name used for the daily ET product, e.g.
// "LC08_222081_20240115".
func (m SceneMetadata) OutputName() string {
	prefix := string(m.Sensor)
	switch m.Sensor {
	case Landsat5:
		prefix = "LT05"
	case Landsat7:
		prefix = "LE07"
	case Landsat8:
		prefix = "LC08"
	case Landsat9:
		prefix = "LC09"
	}
	return fmt.Sprintf("%s_%03d%03d_%s", prefix, m.Path, m.Row, m.Acquired.UTC().Format("20060102"))
}
