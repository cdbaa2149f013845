package sebal

import (
	"context"
	"fmt"
	"math"

	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
)

// Evapotranspiration holds the latent heat flux and its scaling to ET.
type Evapotranspiration struct {
	LE     raster.Layer // W/m², Rn - G - H
	ETInst raster.Layer // mm/h at overpass
	ETrF   raster.Layer // reference ET fraction
	EF     raster.Layer // evaporative fraction LE/(Rn-G)
	ET24   raster.Layer // mm/day
}

// latentHeat returns λ in J/kg for a surface temperature in K.
func latentHeat(lst float64) float64 {
	return (2.501 - 0.002361*(lst-273.15)) * 1e6
}

// ScaleET computes LE as the energy balance residual and scales the
// instantaneous ET to a daily total with the configured method. Pixels
// where any input is undefined stay no data.
func ScaleET(ctx context.Context, e raster.Engine, b *Biophysical, r *RadiationBudget, sh *SensibleHeat, met meteo.Context, method ETMethod) (*Evapotranspiration, error) {
	s := &stage{ctx: ctx, e: e}
	out := &Evapotranspiration{}

	out.LE = s.mapf("le", func(v []float64) (float64, bool) {
		return v[0] - v[1] - v[2], true
	}, r.Rn, r.G, sh.H)
	out.ETInst = s.mapf("et_inst", func(v []float64) (float64, bool) {
		return 3600 * v[0] / latentHeat(v[1]), true
	}, out.LE, b.LST)
	out.ETrF = s.mapf("etrf", func(v []float64) (float64, bool) {
		return v[0] / met.ETrInstant, met.ETrInstant > 0
	}, out.ETInst)
	out.EF = s.mapf("ef", func(v []float64) (float64, bool) {
		avail := v[1] - v[2]
		return v[0] / avail, avail != 0
	}, out.LE, r.Rn, r.G)

	switch method {
	case ReferenceFraction:
		out.ET24 = s.mapf("et24", func(v []float64) (float64, bool) {
			return math.Max(v[0], 0) * met.ETr24, true
		}, out.ETrF)
	case EvaporativeFraction:
		out.ET24 = s.mapf("et24", func(v []float64) (float64, bool) {
			return math.Max(86400*v[0]*met.Rn24/latentHeat(v[1]), 0), true
		}, out.EF, b.LST)
	default:
		return nil, fmt.Errorf("unknown et method %q", method)
	}

	if s.err != nil {
		return nil, fmt.Errorf("scaling ET for scene %s: %w", b.Meta.ID, s.err)
	}
	return out, nil
}
