package raster

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Local is an eager, in-process Engine. Pixel-wise work is split into row
// stripes evaluated concurrently.
type Local struct {
	workers int
}

// NewLocal returns a Local engine using the given number of stripe workers.
// Zero or negative means GOMAXPROCS.
func NewLocal(workers int) *Local {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Local{workers: workers}
}

func (e *Local) dense(l Layer) (*Dense, error) {
	d, ok := l.(*Dense)
	if !ok {
		return nil, fmt.Errorf("%w: %q (%T)", ErrForeignLayer, l.Name(), l)
	}
	return d, nil
}

// Map implements Engine.
func (e *Local) Map(ctx context.Context, name string, fn PixelFunc, inputs ...Layer) (Layer, error) {
	g, err := checkAligned(inputs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	src := make([]*Dense, len(inputs))
	for i, l := range inputs {
		if src[i], err = e.dense(l); err != nil {
			return nil, err
		}
	}

	out := &Dense{
		name:   name,
		grid:   g,
		values: make([]float64, g.Size()),
		valid:  make([]bool, g.Size()),
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, s := range e.stripes(g.Rows) {
		lo, hi := s[0]*g.Cols, s[1]*g.Cols
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			buf := make([]float64, len(src))
		pixels:
			for i := lo; i < hi; i++ {
				for j, d := range src {
					if !d.valid[i] {
						continue pixels
					}
					buf[j] = d.values[i]
				}
				v, ok := fn(buf)
				if ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
					out.values[i] = v
					out.valid[i] = true
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Local) stripes(rows int) [][2]int {
	n := e.workers
	if n > rows {
		n = rows
	}
	step := (rows + n - 1) / n
	var out [][2]int
	for lo := 0; lo < rows; lo += step {
		hi := lo + step
		if hi > rows {
			hi = rows
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}

// Constant implements Engine.
func (e *Local) Constant(_ context.Context, name string, g Grid, v float64) (Layer, error) {
	return Filled(name, g, v)
}

// Rasterize implements Engine.
func (e *Local) Rasterize(ctx context.Context, name string, g Grid, poly orb.Polygon) (Layer, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	bound := poly.Bound()
	vals := make([]float64, g.Size())
	valid := make([]bool, g.Size())
	for i := range vals {
		if i%g.Cols == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pt := g.Center(g.PixelAt(i))
		if bound.Contains(pt) && planar.PolygonContains(poly, pt) {
			vals[i] = 1
			valid[i] = true
		}
	}
	return NewDense(name, g, vals, valid)
}

func (e *Local) validValues(l Layer) ([]float64, error) {
	d, err := e.dense(l)
	if err != nil {
		return nil, err
	}
	x := make([]float64, 0, len(d.values))
	for i, ok := range d.valid {
		if ok {
			x = append(x, d.values[i])
		}
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("%s: %w", l.Name(), ErrEmptyRegion)
	}
	return x, nil
}

// Percentile implements Engine using the empirical quantile of the valid
// pixels.
func (e *Local) Percentile(_ context.Context, l Layer, p float64) (float64, error) {
	x, err := e.validValues(l)
	if err != nil {
		return 0, err
	}
	sort.Float64s(x)
	q := math.Min(math.Max(p/100, 0), 1)
	return stat.Quantile(q, stat.Empirical, x, nil), nil
}

// Stats implements Engine.
func (e *Local) Stats(_ context.Context, l Layer) (Stats, error) {
	x, err := e.validValues(l)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Count: len(x),
		Min:   floats.Min(x),
		Max:   floats.Max(x),
		Mean:  stat.Mean(x, nil),
	}, nil
}

// Nearest implements Engine.
func (e *Local) Nearest(_ context.Context, l Layer, target float64) (Pixel, float64, error) {
	d, err := e.dense(l)
	if err != nil {
		return Pixel{}, 0, err
	}
	best, bestDist := -1, math.Inf(1)
	for i, ok := range d.valid {
		if !ok {
			continue
		}
		if dist := math.Abs(d.values[i] - target); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	if best < 0 {
		return Pixel{}, 0, fmt.Errorf("%s: %w", l.Name(), ErrEmptyRegion)
	}
	return d.grid.PixelAt(best), d.values[best], nil
}

// Sample implements Engine.
func (e *Local) Sample(_ context.Context, l Layer, p Pixel) (float64, bool, error) {
	d, err := e.dense(l)
	if err != nil {
		return 0, false, err
	}
	v, ok := d.At(p)
	return v, ok, nil
}
