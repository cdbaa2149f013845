package raster

import (
	"fmt"
	"math"
)

// Layer is one immutable per-pixel quantity (albedo, NDVI, LST, Rn, ...).
// How the pixels are held is up to the Engine that produced it.
type Layer interface {
	Name() string
	Grid() Grid
}

// Dense is an in-memory layer: row-major values plus a parallel validity
// mask. Invalid cells always hold 0 so encoded layers are deterministic.
type Dense struct {
	name   string
	grid   Grid
	values []float64
	valid  []bool
}

// NewDense copies values into a new layer. A nil valid slice means every
// finite value is valid; non-finite values are always marked invalid.
func NewDense(name string, g Grid, values []float64, valid []bool) (*Dense, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(values) != g.Size() {
		return nil, fmt.Errorf("layer %q: %d values for a %dx%d grid", name, len(values), g.Rows, g.Cols)
	}
	if valid != nil && len(valid) != g.Size() {
		return nil, fmt.Errorf("layer %q: validity mask has %d cells, want %d", name, len(valid), g.Size())
	}

	d := &Dense{
		name:   name,
		grid:   g,
		values: make([]float64, len(values)),
		valid:  make([]bool, len(values)),
	}
	for i, v := range values {
		ok := valid == nil || valid[i]
		if ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			d.values[i] = v
			d.valid[i] = true
		}
	}
	return d, nil
}

// Filled returns a layer with every pixel set to v.
func Filled(name string, g Grid, v float64) (*Dense, error) {
	vals := make([]float64, g.Size())
	for i := range vals {
		vals[i] = v
	}
	return NewDense(name, g, vals, nil)
}

func (d *Dense) Name() string { return d.name }
func (d *Dense) Grid() Grid   { return d.grid }

// At returns the value at p and whether it holds data.
func (d *Dense) At(p Pixel) (float64, bool) {
	if !d.grid.Contains(p) {
		return 0, false
	}
	i := d.grid.Index(p)
	return d.values[i], d.valid[i]
}

// Values returns a copy of the raw cell values (0 where invalid).
func (d *Dense) Values() []float64 {
	out := make([]float64, len(d.values))
	copy(out, d.values)
	return out
}

// Valid returns a copy of the validity mask.
func (d *Dense) Valid() []bool {
	out := make([]bool, len(d.valid))
	copy(out, d.valid)
	return out
}

// ValidCount returns how many pixels hold data.
func (d *Dense) ValidCount() int {
	n := 0
	for _, ok := range d.valid {
		if ok {
			n++
		}
	}
	return n
}

// Rename returns the same pixels under a new name.
func (d *Dense) Rename(name string) *Dense {
	return &Dense{name: name, grid: d.grid, values: d.values, valid: d.valid}
}
