package sebal

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/types"
)

// Summary describes the valid pixels of the daily ET layer.
type Summary struct {
	Valid int     `json:"valid" msgpack:"valid"`
	Min   float64 `json:"min" msgpack:"min"`
	Max   float64 `json:"max" msgpack:"max"`
	Mean  float64 `json:"mean" msgpack:"mean"`
}

// DailyET is the product of one scene.
type DailyET struct {
	Scene types.SceneMetadata

	ET   raster.Layer // mm/day, named after the scene
	ETrF raster.Layer
	EF   raster.Layer
	LE   raster.Layer
	H    raster.Layer
	Rn   raster.Layer
	G    raster.Layer

	Cold, Hot   Endmember
	Calibration []Calibration
	Meteo       meteo.Context
	Stats       Summary

	// Degenerate marks a scene whose sensible heat calibration failed.
	// Calibration entries then hold zero where the fit was not finite.
	Degenerate bool
}

// Processor runs the full SEBAL chain for scenes of one footprint.
type Processor struct {
	engine    raster.Engine
	footprint types.Footprint
	logger    *zap.SugaredLogger
}

// NewProcessor returns a processor bound to an engine and footprint. A nil
// logger uses the package logger.
func NewProcessor(engine raster.Engine, fp types.Footprint, logger *zap.SugaredLogger) *Processor {
	if logger == nil {
		logger = log.GetSugaredLogger()
	}
	return &Processor{engine: engine, footprint: fp, logger: logger}
}

// ComputeDailyET produces the daily ET raster of one scene.
func (p *Processor) ComputeDailyET(ctx context.Context, scene imagery.SceneData, met meteo.Context, dem raster.Layer, cfg Config) (*DailyET, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := met.Validate(); err != nil {
		return nil, err
	}

	logger := log.ForScene(p.logger, scene.Meta.ID)
	e := p.engine

	bio, err := Preprocess(ctx, e, scene, p.footprint, dem, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("biophysical layers ready")

	m, err := SelectEndmembers(ctx, e, bio, cfg.Endmember)
	if err != nil {
		return nil, err
	}

	lwTemp := met.AirTemperatureC + 273.15
	if cfg.Longwave == LongwaveColdPixel {
		lwTemp = m.Cold.LST
	}
	rad, err := Radiation(ctx, e, bio, met, lwTemp)
	if err != nil {
		return nil, err
	}
	if err := m.SampleFluxes(ctx, e, rad); err != nil {
		return nil, fmt.Errorf("scene %s: %w", scene.Meta.ID, err)
	}
	logger.Debugw("endmembers selected",
		"cold_pixel", m.Cold.Pixel, "cold_lst", m.Cold.LST, "cold_ndvi", m.Cold.NDVI,
		"hot_pixel", m.Hot.Pixel, "hot_lst", m.Hot.LST, "hot_ndvi", m.Hot.NDVI)

	sh, err := SolveSensibleHeat(ctx, e, bio, m, met, cfg.Solver, logger)
	if err != nil {
		return nil, err
	}

	et, err := ScaleET(ctx, e, bio, rad, sh, met, cfg.ETMethod)
	if err != nil {
		return nil, err
	}

	named, err := e.Map(ctx, scene.Meta.OutputName(), func(v []float64) (float64, bool) {
		return v[0], true
	}, et.ET24)
	if err != nil {
		return nil, err
	}

	out := &DailyET{
		Scene:      scene.Meta,
		ET:         named,
		ETrF:       et.ETrF,
		EF:         et.EF,
		LE:         et.LE,
		H:          sh.H,
		Rn:         rad.Rn,
		G:          rad.G,
		Cold:       m.Cold,
		Hot:        m.Hot,
		Meteo:      met,
		Degenerate: sh.Degenerate,
	}
	for _, c := range append(sh.Coeffs, sh.Final) {
		out.Calibration = append(out.Calibration, c.finiteOrZero())
	}

	st, err := e.Stats(ctx, named)
	switch {
	case errors.Is(err, raster.ErrEmptyRegion):
		logger.Warnw("daily ET has no valid pixels", "reason", "numeric degeneracy")
	case err != nil:
		return nil, err
	default:
		out.Stats = Summary{Valid: st.Count, Min: st.Min, Max: st.Max, Mean: st.Mean}
	}

	logger.Infow("daily ET computed", "valid_pixels", out.Stats.Valid, "mean_et", out.Stats.Mean)
	return out, nil
}

// Product is the wire form of a DailyET.
type Product struct {
	Scene       types.SceneMetadata `json:"scene" msgpack:"scene"`
	Cold        Endmember           `json:"cold" msgpack:"cold"`
	Hot         Endmember           `json:"hot" msgpack:"hot"`
	Calibration []Calibration       `json:"calibration" msgpack:"calibration"`
	Meteo       meteo.Context       `json:"meteo" msgpack:"meteo"`
	Stats       Summary             `json:"stats" msgpack:"stats"`
	Degenerate  bool                `json:"degenerate" msgpack:"degenerate"`
	Layers      []raster.Payload    `json:"layers" msgpack:"layers"`
}

// Product converts the result to its wire form. Layers appear in a fixed
// order: ET, ETrF, EF, LE, H, Rn, G.
func (d *DailyET) Product() (Product, error) {
	p := Product{
		Scene:       d.Scene,
		Cold:        d.Cold,
		Hot:         d.Hot,
		Calibration: d.Calibration,
		Meteo:       d.Meteo,
		Stats:       d.Stats,
		Degenerate:  d.Degenerate,
	}
	for _, l := range []raster.Layer{d.ET, d.ETrF, d.EF, d.LE, d.H, d.Rn, d.G} {
		pl, err := raster.ToPayload(l)
		if err != nil {
			return Product{}, err
		}
		p.Layers = append(p.Layers, pl)
	}
	return p, nil
}

// Encode serializes the result as MessagePack. Identical inputs produce
// identical bytes.
func (d *DailyET) Encode() ([]byte, error) {
	p, err := d.Product()
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&p)
}

// DecodeProduct parses bytes produced by Encode.
func DecodeProduct(b []byte) (Product, error) {
	var p Product
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Product{}, fmt.Errorf("decoding product: %w", err)
	}
	return p, nil
}
