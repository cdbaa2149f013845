// Package solar provides the sun-earth geometry used by the energy balance:
// relative earth-sun distance, declination, hour angles, zenith and
// extraterrestrial radiation.
package solar

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/solar"
)

// SolarConstant in W/m².
const SolarConstant = 1367.0

// gscMJ is the solar constant in MJ m⁻² min⁻¹.
const gscMJ = 0.0820

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func radToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }
func fixAngle(a float64) float64   { return a - 360.0*math.Floor(a/360.0) }

func century(t time.Time) float64 {
	return base.J2000Century(julian.TimeToJD(t.UTC()))
}

// EarthSunDistance returns the earth-sun distance in AU at t.
func EarthSunDistance(t time.Time) float64 {
	return solar.Radius(century(t))
}

// InverseRelativeDistance returns dr = 1/R², R in AU.
func InverseRelativeDistance(t time.Time) float64 {
	r := EarthSunDistance(t)
	return 1 / (r * r)
}

// Declination returns the apparent solar declination in radians.
func Declination(t time.Time) float64 {
	_, dec := solar.ApparentEquatorial(julian.TimeToJD(t.UTC()))
	return dec.Rad()
}

// EquationOfTime returns apparent minus mean solar time, in minutes.
func EquationOfTime(t time.Time) float64 {
	T := century(t)

	L0 := fixAngle(280.46646 + T*(36000.76983+T*0.0003032))
	M := fixAngle(357.52911 + T*(35999.05029-T*0.0001537))
	e := 0.016708634 - T*(0.000042037+T*0.0000001267)
	eps0 := 23 + (26+(21.448-T*(46.815+T*(0.00059-T*0.001813)))/60)/60

	y := math.Tan(degToRad(eps0)/2) * math.Tan(degToRad(eps0)/2)
	return radToDeg(y*math.Sin(degToRad(2*L0))-
		2*e*math.Sin(degToRad(M))+
		4*e*y*math.Sin(degToRad(M))*math.Cos(degToRad(2*L0))-
		0.5*y*y*math.Sin(degToRad(4*L0))-
		1.25*e*e*math.Sin(degToRad(2*M))) * 4
}

// HourAngle returns the solar hour angle in radians at t for a longitude in
// degrees east. Zero at solar noon, negative in the morning.
func HourAngle(t time.Time, longitude float64) float64 {
	t = t.UTC()
	utcMin := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60.0
	tst := utcMin + 4*longitude + EquationOfTime(t)
	return degToRad(tst/4 - 180)
}

// SunsetHourAngle returns ωs in radians, clamped to [0, π] for polar night
// and polar day.
func SunsetHourAngle(latitude, declination float64) float64 {
	x := -math.Tan(degToRad(latitude)) * math.Tan(declination)
	return math.Acos(math.Max(-1, math.Min(1, x)))
}

// DaylightHours returns the astronomical day length on t's date.
func DaylightHours(t time.Time, latitude float64) float64 {
	return 24 / math.Pi * SunsetHourAngle(latitude, Declination(noon(t)))
}

// CosZenith returns the cosine of the solar zenith angle at t.
func CosZenith(t time.Time, latitude, longitude float64) float64 {
	lat := degToRad(latitude)
	dec := Declination(t)
	return math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(HourAngle(t, longitude))
}

// ExtraterrestrialDaily returns daily extraterrestrial radiation Ra in
// MJ m⁻² day⁻¹ for t's date.
func ExtraterrestrialDaily(t time.Time, latitude float64) float64 {
	t = noon(t)
	lat := degToRad(latitude)
	dec := Declination(t)
	ws := SunsetHourAngle(latitude, dec)
	return 24 * 60 / math.Pi * gscMJ * InverseRelativeDistance(t) *
		(ws*math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Sin(ws))
}

// ExtraterrestrialHourly returns Ra in MJ m⁻² h⁻¹ for the hour centred on t.
// It is zero when the sun is below the horizon for the whole period.
func ExtraterrestrialHourly(t time.Time, latitude, longitude float64) float64 {
	lat := degToRad(latitude)
	dec := Declination(t)
	ws := SunsetHourAngle(latitude, dec)

	w := HourAngle(t, longitude)
	w1 := math.Max(w-math.Pi/24, -ws)
	w2 := math.Min(w+math.Pi/24, ws)
	if w1 >= w2 {
		return 0
	}

	return 12 * 60 / math.Pi * gscMJ * InverseRelativeDistance(t) *
		((w2-w1)*math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*(math.Sin(w2)-math.Sin(w1)))
}

func noon(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
}
