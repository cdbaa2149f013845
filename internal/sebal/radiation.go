package sebal

import (
	"context"
	"fmt"
	"math"

	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/types"
	"github.com/chrissnell/sebal/pkg/solar"
)

const stefanBoltzmann = 5.67e-8 // W m⁻² K⁻⁴

// RadiationBudget holds the instantaneous radiation terms and soil heat
// flux at overpass, all in W/m² except Pressure (kPa) and Transmissivity.
type RadiationBudget struct {
	Pressure       raster.Layer
	Transmissivity raster.Layer
	ShortwaveIn    raster.Layer
	LongwaveOut    raster.Layer
	LongwaveIn     raster.Layer
	Rn             raster.Layer
	G              raster.Layer

	// InverseDistance is dr, the inverse squared earth-sun distance in AU.
	InverseDistance float64
}

// Radiation computes net radiation and soil heat flux. longwaveTemp is the
// temperature in K radiating incoming longwave: air temperature, or the
// cold endmember LST.
func Radiation(ctx context.Context, e raster.Engine, b *Biophysical, met meteo.Context, longwaveTemp float64) (*RadiationBudget, error) {
	cosZ := math.Cos(b.Meta.SolarZenith() * math.Pi / 180)
	if cosZ <= 0 {
		return nil, fmt.Errorf("%w: scene %s has the sun at or below the horizon", types.ErrInvalidGeometry, b.Meta.ID)
	}

	dr := solar.InverseRelativeDistance(b.Meta.Acquired)
	ea := meteo.ActualVaporPressure(met.AirTemperatureC, met.RelativeHumidity)
	s := &stage{ctx: ctx, e: e}

	r := &RadiationBudget{InverseDistance: dr}

	r.Pressure = s.mapf("pressure", func(v []float64) (float64, bool) {
		return meteo.Pressure(v[0]), true
	}, b.DEM)
	r.Transmissivity = s.mapf("transmissivity", func(v []float64) (float64, bool) {
		return transmissivity(v[0], ea, cosZ), true
	}, r.Pressure)
	r.ShortwaveIn = s.mapf("rs_down", func(v []float64) (float64, bool) {
		return solar.SolarConstant * cosZ * dr * v[0], true
	}, r.Transmissivity)
	r.LongwaveOut = s.mapf("rl_up", func(v []float64) (float64, bool) {
		return v[0] * stefanBoltzmann * math.Pow(v[1], 4), true
	}, b.E0, b.LST)
	r.LongwaveIn = s.mapf("rl_down", func(v []float64) (float64, bool) {
		return atmosphericEmissivity(v[0]) * stefanBoltzmann * math.Pow(longwaveTemp, 4), true
	}, r.Transmissivity)
	r.Rn = s.mapf("rn", func(v []float64) (float64, bool) {
		return netRadiation(v[0], v[1], v[2], v[3], v[4]), true
	}, b.Albedo, r.ShortwaveIn, r.LongwaveIn, r.LongwaveOut, b.E0)
	r.G = s.mapf("g", func(v []float64) (float64, bool) {
		return soilHeatFlux(v[0], v[1], v[2], v[3]), true
	}, r.Rn, b.LST, b.Albedo, b.NDVI)

	if s.err != nil {
		return nil, fmt.Errorf("radiation for scene %s: %w", b.Meta.ID, s.err)
	}
	return r, nil
}

// transmissivity returns the broadband atmospheric transmissivity for
// pressure p (kPa), vapour pressure ea (kPa) and the cosine of the zenith.
func transmissivity(p, ea, cosZ float64) float64 {
	w := 0.14*ea*p + 2.1
	return 0.35 + 0.627*math.Exp(-0.00146*p/cosZ-0.075*math.Pow(w/cosZ, 0.4))
}

func atmosphericEmissivity(tau float64) float64 {
	return 0.85 * math.Pow(-math.Log(tau), 0.09)
}

func netRadiation(albedo, rsDown, rlDown, rlUp, e0 float64) float64 {
	return (1-albedo)*rsDown + rlDown - rlUp - (1-e0)*rlDown
}

func soilHeatFlux(rn, lst, albedo, ndvi float64) float64 {
	return rn * (lst - 273.15) * (0.0038 + 0.0074*albedo) * (1 - 0.98*math.Pow(ndvi, 4))
}
