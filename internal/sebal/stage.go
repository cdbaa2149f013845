package sebal

import (
	"context"

	"github.com/chrissnell/sebal/internal/raster"
)

// stage chains raster operations and keeps the first error, so a stage
// reads as a sequence of formulas with a single check at the end.
type stage struct {
	ctx context.Context
	e   raster.Engine
	err error
}

func (s *stage) mapf(name string, fn raster.PixelFunc, in ...raster.Layer) raster.Layer {
	if s.err != nil {
		return nil
	}
	l, err := s.e.Map(s.ctx, name, fn, in...)
	if err != nil {
		s.err = err
	}
	return l
}

func (s *stage) percentile(l raster.Layer, p float64) float64 {
	if s.err != nil {
		return 0
	}
	v, err := s.e.Percentile(s.ctx, l, p)
	if err != nil {
		s.err = err
	}
	return v
}

func (s *stage) nearest(l raster.Layer, target float64) (raster.Pixel, float64) {
	if s.err != nil {
		return raster.Pixel{}, 0
	}
	px, v, err := s.e.Nearest(s.ctx, l, target)
	if err != nil {
		s.err = err
	}
	return px, v
}
