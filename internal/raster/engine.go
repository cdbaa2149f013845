package raster

import (
	"context"

	"github.com/paulmach/orb"
)

// PixelFunc computes one output pixel from the values of the input layers at
// the same location. It is only called when every input is valid; returning
// ok=false (or a non-finite value) marks the output pixel as no data.
type PixelFunc func(v []float64) (out float64, ok bool)

// Stats summarizes the valid pixels of a layer.
type Stats struct {
	Count int     `json:"count" msgpack:"count"`
	Min   float64 `json:"min" msgpack:"min"`
	Max   float64 `json:"max" msgpack:"max"`
	Mean  float64 `json:"mean" msgpack:"mean"`
}

// Engine is the layer algebra the SEBAL stages are written against. An eager
// engine materializes every operation immediately; a deferred backend may
// queue them and only evaluate on reductions. Callers must not assume either.
type Engine interface {
	// Map applies fn pixel by pixel over aligned inputs.
	Map(ctx context.Context, name string, fn PixelFunc, inputs ...Layer) (Layer, error)

	// Constant returns a layer with every pixel of g set to v.
	Constant(ctx context.Context, name string, g Grid, v float64) (Layer, error)

	// Rasterize burns a polygon into g: 1 inside, no data outside.
	Rasterize(ctx context.Context, name string, g Grid, poly orb.Polygon) (Layer, error)

	// Percentile returns the p-th percentile (0..100) of the valid pixels.
	Percentile(ctx context.Context, l Layer, p float64) (float64, error)

	// Stats returns count, min, max and mean of the valid pixels.
	Stats(ctx context.Context, l Layer) (Stats, error)

	// Nearest returns the valid pixel whose value is closest to target.
	// Ties resolve to the lowest row-major offset.
	Nearest(ctx context.Context, l Layer, target float64) (Pixel, float64, error)

	// Sample reads a single pixel.
	Sample(ctx context.Context, l Layer, p Pixel) (float64, bool, error)
}

// Where keeps src where keep is valid and non-zero, no data elsewhere.
func Where(ctx context.Context, e Engine, name string, src, keep Layer) (Layer, error) {
	return e.Map(ctx, name, func(v []float64) (float64, bool) {
		return v[0], v[1] != 0
	}, src, keep)
}
