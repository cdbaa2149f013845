// Package sensors resolves the calibration differences between the Landsat
// TM/ETM+ family and the OLI/TIRS family: band naming, Collection 2 scale
// factors, QA_PIXEL cloud masking and broadband albedo weights.
package sensors

import (
	"fmt"

	"github.com/chrissnell/sebal/internal/types"
)

// Band is a canonical band name independent of the sensor's own numbering.
type Band string

const (
	Blue    Band = "blue"
	Green   Band = "green"
	Red     Band = "red"
	NIR     Band = "nir"
	SWIR1   Band = "swir1"
	SWIR2   Band = "swir2"
	Thermal Band = "thermal"
	QA      Band = "qa"
)

// ReflectiveBands are the bands weighted into broadband albedo, in the order
// expected by Calibration.Albedo.
var ReflectiveBands = []Band{Blue, Green, Red, NIR, SWIR1, SWIR2}

// Collection 2 Level-2 scale factors.
const (
	reflectanceMult = 0.0000275
	reflectanceAdd  = -0.2
	thermalMult     = 0.00341802
	thermalAdd      = 149.0
)

// QA_PIXEL bit flags.
const (
	qaFill         = 1 << 0
	qaDilatedCloud = 1 << 1
	qaCirrus       = 1 << 2
	qaCloud        = 1 << 3
	qaCloudShadow  = 1 << 4
)

// Calibration is the per-family strategy. The set of implementations is
// closed: familyA and familyB.
type Calibration interface {
	Family() types.SensorFamily

	// SourceBand returns the band name used by the imagery product.
	SourceBand(b Band) string

	// Reflectance converts a scaled surface-reflectance DN.
	Reflectance(dn float64) float64

	// BrightnessTemperature converts a scaled surface-temperature DN to K.
	BrightnessTemperature(dn float64) float64

	// Masked reports whether a QA_PIXEL value flags fill, cloud or shadow.
	Masked(qa uint16) bool

	// Albedo weights reflectances ordered as ReflectiveBands.
	Albedo(r []float64) float64
}

// For returns the calibration strategy for a sensor generation.
func For(gen types.SensorGeneration) (Calibration, error) {
	switch gen.Family() {
	case types.FamilyA:
		return familyA{}, nil
	case types.FamilyB:
		return familyB{}, nil
	}
	return nil, fmt.Errorf("no calibration for sensor %q", gen)
}

type familyA struct{}

var familyABands = map[Band]string{
	Blue: "SR_B1", Green: "SR_B2", Red: "SR_B3", NIR: "SR_B4",
	SWIR1: "SR_B5", SWIR2: "SR_B7", Thermal: "ST_B6", QA: "QA_PIXEL",
}

// Tasumi et al. (2008) weights for TM/ETM+.
var familyAAlbedo = []float64{0.254, 0.149, 0.147, 0.311, 0.103, 0.036}

func (familyA) Family() types.SensorFamily               { return types.FamilyA }
func (familyA) SourceBand(b Band) string                 { return familyABands[b] }
func (familyA) Reflectance(dn float64) float64           { return dn*reflectanceMult + reflectanceAdd }
func (familyA) BrightnessTemperature(dn float64) float64 { return dn*thermalMult + thermalAdd }
func (familyA) Albedo(r []float64) float64               { return weigh(familyAAlbedo, r) }

// TM/ETM+ has no cirrus band, bit 2 is unused.
func (familyA) Masked(qa uint16) bool {
	return qa&(qaFill|qaDilatedCloud|qaCloud|qaCloudShadow) != 0
}

type familyB struct{}

var familyBBands = map[Band]string{
	Blue: "SR_B2", Green: "SR_B3", Red: "SR_B4", NIR: "SR_B5",
	SWIR1: "SR_B6", SWIR2: "SR_B7", Thermal: "ST_B10", QA: "QA_PIXEL",
}

// Tasumi et al. (2008) method with Ke et al. (2016) OLI coefficients.
var familyBAlbedo = []float64{0.3, 0.277, 0.233, 0.143, 0.036, 0.012}

func (familyB) Family() types.SensorFamily               { return types.FamilyB }
func (familyB) SourceBand(b Band) string                 { return familyBBands[b] }
func (familyB) Reflectance(dn float64) float64           { return dn*reflectanceMult + reflectanceAdd }
func (familyB) BrightnessTemperature(dn float64) float64 { return dn*thermalMult + thermalAdd }
func (familyB) Albedo(r []float64) float64               { return weigh(familyBAlbedo, r) }

func (familyB) Masked(qa uint16) bool {
	return qa&(qaFill|qaDilatedCloud|qaCirrus|qaCloud|qaCloudShadow) != 0
}

func weigh(w, r []float64) float64 {
	var sum float64
	for i, c := range w {
		sum += c * r[i]
	}
	return sum
}
