package sebal

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/sebal/internal/raster"
)

// EndmemberKind distinguishes the two calibration anchors.
type EndmemberKind string

const (
	Cold EndmemberKind = "cold"
	Hot  EndmemberKind = "hot"
)

// Endmember is a calibration pixel: well-watered vegetation (cold) or dry
// bare soil (hot).
type Endmember struct {
	Kind  EndmemberKind `json:"kind" msgpack:"kind"`
	Pixel raster.Pixel  `json:"pixel" msgpack:"pixel"`
	NDVI  float64       `json:"ndvi" msgpack:"ndvi"`
	LST   float64       `json:"lst" msgpack:"lst"`
	Rn    float64       `json:"rn" msgpack:"rn"`
	G     float64       `json:"g" msgpack:"g"`
	Z0m   float64       `json:"z0m" msgpack:"z0m"`
}

// Endmembers is the selected cold/hot pair.
type Endmembers struct {
	Cold Endmember `json:"cold" msgpack:"cold"`
	Hot  Endmember `json:"hot" msgpack:"hot"`
}

// SelectEndmembers picks the cold pixel among the greenest pixels and the
// hot pixel among the least vegetated, each nearest a target LST
// percentile within its pool. Rn and G are filled by SampleFluxes.
func SelectEndmembers(ctx context.Context, e raster.Engine, b *Biophysical, cfg EndmemberConfig) (Endmembers, error) {
	s := &stage{ctx: ctx, e: e}

	coldNDVI := s.percentile(b.NDVI, 100-cfg.ColdNDVIPercent)
	coldPool := s.mapf("cold_pool", func(v []float64) (float64, bool) {
		return v[1], v[0] >= coldNDVI
	}, b.NDVI, b.LST, b.Albedo)
	coldTarget := s.percentile(coldPool, cfg.ColdLSTPercentile)
	coldPx, coldLST := s.nearest(coldPool, coldTarget)

	hotNDVI := s.percentile(b.NDVI, cfg.HotNDVIPercent)
	hotPool := s.mapf("hot_pool", func(v []float64) (float64, bool) {
		return v[1], v[0] <= hotNDVI
	}, b.NDVI, b.LST, b.Albedo)
	hotTarget := s.percentile(hotPool, 100-cfg.HotLSTPercentile)
	hotPx, hotLST := s.nearest(hotPool, hotTarget)

	if s.err != nil {
		if errors.Is(s.err, raster.ErrEmptyRegion) {
			return Endmembers{}, fmt.Errorf("scene %s: %w: %v", b.Meta.ID, ErrEndmemberUnavailable, s.err)
		}
		return Endmembers{}, s.err
	}

	if coldPx == hotPx {
		return Endmembers{}, fmt.Errorf("scene %s: %w: cold and hot endmember share pixel %v", b.Meta.ID, ErrEndmemberUnavailable, coldPx)
	}
	if hotLST <= coldLST {
		return Endmembers{}, fmt.Errorf("scene %s: %w: hot LST %.2f K not above cold LST %.2f K", b.Meta.ID, ErrEndmemberUnavailable, hotLST, coldLST)
	}

	m := Endmembers{
		Cold: Endmember{Kind: Cold, Pixel: coldPx, LST: coldLST},
		Hot:  Endmember{Kind: Hot, Pixel: hotPx, LST: hotLST},
	}
	for _, em := range []*Endmember{&m.Cold, &m.Hot} {
		v, ok, err := e.Sample(ctx, b.NDVI, em.Pixel)
		if err != nil {
			return Endmembers{}, err
		}
		if !ok {
			return Endmembers{}, fmt.Errorf("scene %s: %w: %s pixel has no NDVI", b.Meta.ID, ErrEndmemberUnavailable, em.Kind)
		}
		em.NDVI = v
		em.Z0m = momentumRoughness(v)
	}
	return m, nil
}

// SampleFluxes reads Rn and G at both endmember pixels.
func (m *Endmembers) SampleFluxes(ctx context.Context, e raster.Engine, r *RadiationBudget) error {
	for _, em := range []*Endmember{&m.Cold, &m.Hot} {
		rn, okRn, err := e.Sample(ctx, r.Rn, em.Pixel)
		if err != nil {
			return err
		}
		g, okG, err := e.Sample(ctx, r.G, em.Pixel)
		if err != nil {
			return err
		}
		if !okRn || !okG {
			return fmt.Errorf("%w: no radiation at %s pixel %v", ErrEndmemberUnavailable, em.Kind, em.Pixel)
		}
		em.Rn, em.G = rn, g
	}
	return nil
}
