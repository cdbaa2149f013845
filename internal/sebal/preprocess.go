package sebal

import (
	"context"
	"fmt"
	"math"

	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/sensors"
	"github.com/chrissnell/sebal/internal/types"
)

const (
	saviL     = 0.5
	saviCap   = 0.687
	laiMax    = 6.0
	lapseRate = 0.0065 // K/m
)

// Biophysical holds the per-pixel surface properties of one scene. Every
// layer shares the scene grid and is no data outside the footprint and
// under cloud.
type Biophysical struct {
	Meta types.SceneMetadata

	Albedo raster.Layer
	NDVI   raster.Layer
	SAVI   raster.Layer
	LAI    raster.Layer
	E0     raster.Layer // broadband surface emissivity
	ENB    raster.Layer // narrow-band emissivity of the thermal band
	LST    raster.Layer // K, lapse corrected
	Mask   raster.Layer // 1 where the pixel is clear and inside the footprint
	DEM    raster.Layer // m
}

// Preprocess scales and masks a scene and derives albedo, vegetation
// indices, emissivity and land surface temperature.
func Preprocess(ctx context.Context, e raster.Engine, scene imagery.SceneData, fp types.Footprint, dem raster.Layer, cfg Config) (*Biophysical, error) {
	meta := scene.Meta
	g := meta.Grid
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: scene %s: %v", types.ErrInvalidGeometry, meta.ID, err)
	}
	if err := fp.Validate(); err != nil {
		return nil, err
	}
	cal, err := sensors.For(meta.Sensor)
	if err != nil {
		return nil, err
	}

	bands := append(append([]sensors.Band{}, sensors.ReflectiveBands...), sensors.Thermal, sensors.QA)
	raw := make(map[sensors.Band]raster.Layer, len(bands))
	for _, b := range bands {
		l, err := scene.Band(b)
		if err != nil {
			return nil, err
		}
		if !l.Grid().Equal(g) {
			return nil, fmt.Errorf("scene %s band %s: %w", meta.ID, b, raster.ErrGridMismatch)
		}
		raw[b] = l
	}
	if dem == nil {
		return nil, fmt.Errorf("scene %s: no elevation layer", meta.ID)
	}
	if !dem.Grid().Equal(g) {
		return nil, fmt.Errorf("scene %s elevation: %w", meta.ID, raster.ErrGridMismatch)
	}

	s := &stage{ctx: ctx, e: e}

	clip, err := e.Rasterize(ctx, "footprint", g, fp.Polygon)
	if err != nil {
		return nil, err
	}
	mask := s.mapf("mask", func(v []float64) (float64, bool) {
		return 1, !cal.Masked(uint16(v[0]))
	}, raw[sensors.QA], clip)

	reflectance := func(dn float64) float64 { return dn }
	temperature := func(dn float64) float64 { return dn }
	if !scene.Scaled {
		reflectance = cal.Reflectance
		temperature = cal.BrightnessTemperature
	}

	refl := make([]raster.Layer, len(sensors.ReflectiveBands))
	for i, b := range sensors.ReflectiveBands {
		refl[i] = s.mapf(string(b), func(v []float64) (float64, bool) {
			return reflectance(v[0]), true
		}, raw[b], mask)
	}
	bt := s.mapf("brightness_temperature", func(v []float64) (float64, bool) {
		return temperature(v[0]), true
	}, raw[sensors.Thermal], mask)
	elevation := s.mapf("elevation", func(v []float64) (float64, bool) {
		return v[0], true
	}, dem, mask)

	b := &Biophysical{Meta: meta, Mask: mask, DEM: elevation}

	b.Albedo = s.mapf("albedo", func(v []float64) (float64, bool) {
		return cal.Albedo(v), true
	}, refl...)

	red, nir := refl[2], refl[3]
	b.NDVI = s.mapf("ndvi", func(v []float64) (float64, bool) {
		return ndvi(v[1], v[0])
	}, red, nir)
	b.SAVI = s.mapf("savi", func(v []float64) (float64, bool) {
		den := v[1] + v[0] + saviL
		if den == 0 {
			return 0, false
		}
		return (1 + saviL) * (v[1] - v[0]) / den, true
	}, red, nir)
	b.LAI = s.mapf("lai", func(v []float64) (float64, bool) {
		return lai(v[0]), true
	}, b.SAVI)
	b.ENB = s.mapf("emissivity_nb", func(v []float64) (float64, bool) {
		enb, _ := emissivity(v[0], v[1])
		return enb, true
	}, b.LAI, b.NDVI)
	b.E0 = s.mapf("emissivity", func(v []float64) (float64, bool) {
		_, e0 := emissivity(v[0], v[1])
		return e0, true
	}, b.LAI, b.NDVI)

	datum := cfg.LapseDatum
	b.LST = s.mapf("lst", func(v []float64) (float64, bool) {
		return v[0]/math.Pow(v[1], 0.25) + lapseRate*(v[2]-datum), true
	}, bt, b.ENB, elevation)

	if s.err != nil {
		return nil, fmt.Errorf("preprocessing scene %s: %w", meta.ID, s.err)
	}
	return b, nil
}

// ndvi returns the normalized difference vegetation index, clamped to
// [-1, 1]. A zero denominator is no data.
func ndvi(nir, red float64) (float64, bool) {
	den := nir + red
	if den == 0 {
		return 0, false
	}
	return math.Max(-1, math.Min(1, (nir-red)/den)), true
}

func lai(savi float64) float64 {
	savi = math.Min(savi, saviCap)
	l := -math.Log((0.69-savi)/0.59) / 0.91
	return math.Max(0, math.Min(laiMax, l))
}

// emissivity returns the narrow-band and broadband surface emissivities.
func emissivity(lai, ndvi float64) (enb, e0 float64) {
	switch {
	case ndvi < 0:
		return 0.985, 0.985
	case lai >= 3:
		return 0.98, 0.98
	}
	return 0.97 + 0.0033*lai, 0.95 + 0.01*lai
}

// momentumRoughness returns z0m in m from NDVI.
func momentumRoughness(ndvi float64) float64 {
	return math.Exp(5.62*ndvi - 5.809)
}
