// Package timeseries turns the stored scenes of a run into one ET series per
// field lot. Each scene contributes the mean ET of the lot's pixels; scenes
// are folded into fixed-length max composites and composites without a
// scene are filled by linear interpolation between their neighbours.
package timeseries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"

	"github.com/chrissnell/sebal/internal/fields"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/sebal"
	"github.com/chrissnell/sebal/internal/storage"
	"github.com/chrissnell/sebal/internal/types"
)

// DefaultPeriod is the composite length.
const DefaultPeriod = 15 * 24 * time.Hour

// Sample is the mean ET of one lot in one scene.
type Sample struct {
	SceneID  string
	Acquired time.Time
	ET       float64
	Pixels   int
}

// Point is one composite period of a series.
type Point struct {
	Start  time.Time `json:"start" msgpack:"start"`
	ET     float64   `json:"et" msgpack:"et"`
	Scenes int       `json:"scenes" msgpack:"scenes"`
	Filled bool      `json:"filled" msgpack:"filled"`
}

// Series is the composited ET of one lot.
type Series struct {
	Campo  string  `json:"campo" msgpack:"campo"`
	Lote   string  `json:"lote" msgpack:"lote"`
	Points []Point `json:"points" msgpack:"points"`
}

// Composite bins samples into periods starting at midnight UTC of the first
// acquisition and keeps the largest ET of each period. Periods without a
// sample take the value interpolated between the nearest periods that have
// one. The first and last periods always hold a sample.
func Composite(samples []Sample, period time.Duration) []Point {
	if len(samples) == 0 || period <= 0 {
		return []Point{}
	}
	s := append([]Sample(nil), samples...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Acquired.Before(s[j].Acquired) })

	origin := s[0].Acquired.UTC().Truncate(24 * time.Hour)
	n := int(s[len(s)-1].Acquired.Sub(origin)/period) + 1
	points := make([]Point, n)
	for i := range points {
		points[i].Start = origin.Add(time.Duration(i) * period)
	}
	for _, x := range s {
		p := &points[int(x.Acquired.Sub(origin)/period)]
		if p.Scenes == 0 || x.ET > p.ET {
			p.ET = x.ET
		}
		p.Scenes++
	}

	prev := 0
	for i := 1; i < n; i++ {
		if points[i].Scenes == 0 {
			continue
		}
		for j := prev + 1; j < i; j++ {
			f := float64(j-prev) / float64(i-prev)
			points[j].ET = points[prev].ET + f*(points[i].ET-points[prev].ET)
			points[j].Filled = true
		}
		prev = i
	}
	return points
}

type lot struct {
	key, campo, lote string
	polys            []orb.Polygon
}

// group dissolves fields sharing a campo/lote pair, in first-seen order.
func group(fs []fields.Field) ([]*lot, error) {
	var lots []*lot
	byKey := map[string]*lot{}
	for i, f := range fs {
		l, ok := byKey[f.Key()]
		if !ok {
			l = &lot{key: f.Key(), campo: f.Campo, lote: f.Lote}
			byKey[f.Key()] = l
			lots = append(lots, l)
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			l.polys = append(l.polys, g)
		case orb.MultiPolygon:
			l.polys = append(l.polys, g...)
		default:
			return nil, fmt.Errorf("%w: field %d (%s) is not a polygon", types.ErrInvalidGeometry, i, f.Key())
		}
	}
	return lots, nil
}

// clip averages the valid ET pixels whose centres fall inside the polygons.
// pixels is zero when none do.
func clip(ctx context.Context, e raster.Engine, et raster.Layer, polys []orb.Polygon) (mean float64, pixels int, err error) {
	g := et.Grid()
	extent := g.Bound()
	var sum float64
	for _, poly := range polys {
		if !poly.Bound().Intersects(extent) {
			continue
		}
		mask, err := e.Rasterize(ctx, "field_mask", g, poly)
		if err != nil {
			return 0, 0, err
		}
		inside, err := raster.Where(ctx, e, "field_et", et, mask)
		if err != nil {
			return 0, 0, err
		}
		st, err := e.Stats(ctx, inside)
		if errors.Is(err, raster.ErrEmptyRegion) {
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		sum += st.Mean * float64(st.Count)
		pixels += st.Count
	}
	if pixels == 0 {
		return 0, 0, nil
	}
	return sum / float64(pixels), pixels, nil
}

// Samples returns, per lot key, the mean ET of every product that has valid
// pixels inside the lot. Degenerate products and products without layers are
// ignored.
func Samples(ctx context.Context, e raster.Engine, products []sebal.Product, fs []fields.Field) (map[string][]Sample, error) {
	lots, err := group(fs)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Sample, len(lots))
	for _, p := range products {
		if p.Degenerate || len(p.Layers) == 0 {
			continue
		}
		et, err := p.Layers[0].Layer()
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", p.Scene.ID, err)
		}
		for _, l := range lots {
			mean, n, err := clip(ctx, e, et, l.polys)
			if err != nil {
				return nil, fmt.Errorf("scene %s, field %s: %w", p.Scene.ID, l.key, err)
			}
			if n == 0 {
				continue
			}
			out[l.key] = append(out[l.key], Sample{SceneID: p.Scene.ID, Acquired: p.Scene.Acquired, ET: mean, Pixels: n})
		}
	}
	return out, nil
}

// Build returns one composited series per lot, in the order lots first
// appear in fs. Lots no scene covers get an empty series.
func Build(ctx context.Context, e raster.Engine, products []sebal.Product, fs []fields.Field, period time.Duration) ([]Series, error) {
	samples, err := Samples(ctx, e, products, fs)
	if err != nil {
		return nil, err
	}
	lots, _ := group(fs)
	out := make([]Series, 0, len(lots))
	for _, l := range lots {
		out = append(out, Series{
			Campo:  l.campo,
			Lote:   l.lote,
			Points: Composite(samples[l.key], period),
		})
	}
	return out, nil
}

// Products decodes the stored products of a run.
func Products(ctx context.Context, r storage.Reader, runID string) ([]sebal.Product, error) {
	if _, err := r.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	results, err := r.ListResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]sebal.Product, 0, len(results))
	for _, res := range results {
		full, err := r.GetResult(ctx, runID, res.SceneID)
		if err != nil {
			return nil, err
		}
		p, err := sebal.DecodeProduct(full.Payload)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", res.SceneID, err)
		}
		out = append(out, p)
	}
	return out, nil
}
