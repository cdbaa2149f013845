// Package raster models aligned per-pixel layers and the layer algebra the
// energy-balance engine is written against. Layers carry an explicit
// validity mask; "no data" is never encoded as a sentinel float.
package raster

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

var (
	// ErrGridMismatch is returned when layers combined in one operation do
	// not share the same grid. It is a precondition violation: layers are
	// never resampled to make them fit.
	ErrGridMismatch = errors.New("raster grid mismatch")

	// ErrEmptyRegion is returned by reductions over a layer with no valid pixels.
	ErrEmptyRegion = errors.New("no valid pixels in region")

	// ErrForeignLayer is returned when an engine receives a layer produced
	// by a different engine implementation.
	ErrForeignLayer = errors.New("layer not produced by this engine")
)

// Grid describes the spatial frame shared by every layer of a scene.
// Transform follows the GDAL affine convention:
// x = T[0] + col*T[1] + row*T[2], y = T[3] + col*T[4] + row*T[5].
type Grid struct {
	Rows      int        `json:"rows" msgpack:"rows"`
	Cols      int        `json:"cols" msgpack:"cols"`
	CRS       string     `json:"crs" msgpack:"crs"`
	Transform [6]float64 `json:"transform" msgpack:"transform"`
}

// Pixel addresses one cell of a grid.
type Pixel struct {
	Row int `json:"row" msgpack:"row"`
	Col int `json:"col" msgpack:"col"`
}

// Size returns the number of cells in the grid.
func (g Grid) Size() int {
	return g.Rows * g.Cols
}

// Validate rejects grids with no cells.
func (g Grid) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("grid %dx%d has no cells", g.Rows, g.Cols)
	}
	return nil
}

// Equal reports whether two grids are pixel-aligned: same dimensions,
// projection and affine transform.
func (g Grid) Equal(o Grid) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols && g.CRS == o.CRS && g.Transform == o.Transform
}

// Index converts a pixel address into a row-major offset.
func (g Grid) Index(p Pixel) int {
	return p.Row*g.Cols + p.Col
}

// PixelAt converts a row-major offset back into a pixel address.
func (g Grid) PixelAt(i int) Pixel {
	return Pixel{Row: i / g.Cols, Col: i % g.Cols}
}

// Contains reports whether p lies inside the grid.
func (g Grid) Contains(p Pixel) bool {
	return p.Row >= 0 && p.Row < g.Rows && p.Col >= 0 && p.Col < g.Cols
}

// Center returns the map coordinate of the centre of pixel p.
func (g Grid) Center(p Pixel) orb.Point {
	c := float64(p.Col) + 0.5
	r := float64(p.Row) + 0.5
	t := g.Transform
	return orb.Point{t[0] + c*t[1] + r*t[2], t[3] + c*t[4] + r*t[5]}
}

// Bound returns the extent of the grid in map coordinates.
func (g Grid) Bound() orb.Bound {
	t := g.Transform
	corner := func(c, r float64) orb.Point {
		return orb.Point{t[0] + c*t[1] + r*t[2], t[3] + c*t[4] + r*t[5]}
	}
	return orb.MultiPoint{
		corner(0, 0),
		corner(float64(g.Cols), 0),
		corner(0, float64(g.Rows)),
		corner(float64(g.Cols), float64(g.Rows)),
	}.Bound()
}

func checkAligned(layers []Layer) (Grid, error) {
	if len(layers) == 0 {
		return Grid{}, errors.New("no input layers")
	}
	g := layers[0].Grid()
	for _, l := range layers[1:] {
		if !g.Equal(l.Grid()) {
			return Grid{}, fmt.Errorf("%w: %q is %dx%d, %q is %dx%d", ErrGridMismatch,
				layers[0].Name(), g.Rows, g.Cols, l.Name(), l.Grid().Rows, l.Grid().Cols)
		}
	}
	return g, nil
}
