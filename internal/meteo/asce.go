package meteo

import (
	"math"
	"time"

	"github.com/chrissnell/sebal/pkg/solar"
)

// Tall (alfalfa) reference constants of the ASCE standardized
// Penman-Monteith equation.
const (
	cnHourly        = 66.0
	cdHourlyDay     = 0.25
	cdHourlyNight   = 1.7
	cnDaily         = 1600.0
	cdDaily         = 0.38
	surfaceAlbedo   = 0.23
	sigmaHourly     = 2.042e-10 // MJ K⁻⁴ m⁻² h⁻¹
	sigmaDaily      = 4.901e-9  // MJ K⁻⁴ m⁻² d⁻¹
	nightCloudiness = 0.7
)

// Conditions are the inputs to the reference ET equations.
type Conditions struct {
	Time                           time.Time
	Latitude, Longitude, Elevation float64

	AirTemperatureC   float64
	RelativeHumidity  float64
	WindSpeed         float64
	MeasurementHeight float64

	// SolarRadiation is the mean incoming shortwave over the step in W/m².
	// Zero or negative means clear sky.
	SolarRadiation float64
}

// Pressure returns atmospheric pressure in kPa at elevation z in m.
func Pressure(z float64) float64 {
	return 101.3 * math.Pow((293-0.0065*z)/293, 5.26)
}

// SaturationVaporPressure returns es in kPa for a temperature in °C.
func SaturationVaporPressure(tc float64) float64 {
	return 0.6108 * math.Exp(17.27*tc/(tc+237.3))
}

// ActualVaporPressure returns ea in kPa.
func ActualVaporPressure(tc, rh float64) float64 {
	return SaturationVaporPressure(tc) * rh / 100
}

func slope(tc float64) float64 {
	return 2503 * math.Exp(17.27*tc/(tc+237.3)) / math.Pow(tc+237.3, 2)
}

// WindAt2m adjusts a wind speed measured at height zw to 2 m.
func WindAt2m(u, zw float64) float64 {
	if zw == 2 {
		return u
	}
	return u * 4.87 / math.Log(67.8*zw-5.42)
}

func cloudiness(rs, rso float64) float64 {
	if rso <= 0 {
		return nightCloudiness
	}
	f := 1.35*math.Min(rs/rso, 1) - 0.35
	return math.Max(0.05, math.Min(1, f))
}

func penmanMonteith(delta, gamma, rn, g, cn, cd, tc, u2, vpd float64) float64 {
	return (0.408*delta*(rn-g) + gamma*cn/(tc+273)*u2*vpd) / (delta + gamma*(1+cd*u2))
}

// HourlyReferenceET returns tall reference ET in mm/h for the hour centred
// on c.Time.
func HourlyReferenceET(c Conditions) float64 {
	ra := solar.ExtraterrestrialHourly(c.Time, c.Latitude, c.Longitude)
	rso := (0.75 + 2e-5*c.Elevation) * ra
	rs := c.SolarRadiation * 0.0036
	if c.SolarRadiation <= 0 {
		rs = rso
	}

	ea := ActualVaporPressure(c.AirTemperatureC, c.RelativeHumidity)
	tk := c.AirTemperatureC + 273.16
	rnl := sigmaHourly * cloudiness(rs, rso) * (0.34 - 0.14*math.Sqrt(ea)) * math.Pow(tk, 4)
	rn := (1-surfaceAlbedo)*rs - rnl

	cd, g := cdHourlyDay, 0.04*rn
	if rn < 0 {
		cd, g = cdHourlyNight, 0.2*rn
	}

	gamma := 0.000665 * Pressure(c.Elevation)
	u2 := WindAt2m(c.WindSpeed, c.MeasurementHeight)
	vpd := SaturationVaporPressure(c.AirTemperatureC) - ea

	return math.Max(0, penmanMonteith(slope(c.AirTemperatureC), gamma, rn, g, cnHourly, cd, c.AirTemperatureC, u2, vpd))
}

func dailyNet(c Conditions) (rn, rs float64) {
	ra := solar.ExtraterrestrialDaily(c.Time, c.Latitude)
	rso := (0.75 + 2e-5*c.Elevation) * ra
	rs = c.SolarRadiation * 0.0864
	if c.SolarRadiation <= 0 {
		rs = rso
	}

	ea := ActualVaporPressure(c.AirTemperatureC, c.RelativeHumidity)
	tk := c.AirTemperatureC + 273.16
	rnl := sigmaDaily * cloudiness(rs, rso) * (0.34 - 0.14*math.Sqrt(ea)) * math.Pow(tk, 4)
	return (1-surfaceAlbedo)*rs - rnl, rs
}

// DailyReferenceET returns tall reference ET in mm/day, treating the
// conditions as daily means.
func DailyReferenceET(c Conditions) float64 {
	rn, _ := dailyNet(c)
	gamma := 0.000665 * Pressure(c.Elevation)
	u2 := WindAt2m(c.WindSpeed, c.MeasurementHeight)
	vpd := SaturationVaporPressure(c.AirTemperatureC) - ActualVaporPressure(c.AirTemperatureC, c.RelativeHumidity)
	return math.Max(0, penmanMonteith(slope(c.AirTemperatureC), gamma, rn, 0, cnDaily, cdDaily, c.AirTemperatureC, u2, vpd))
}

// DailyNetRadiation returns the 24 h mean net radiation over the reference
// surface in W/m².
func DailyNetRadiation(c Conditions) float64 {
	rn, _ := dailyNet(c)
	return rn / 0.0864
}
