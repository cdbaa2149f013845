// Package imagery defines the boundary to the raster/imagery collaborator:
// scene discovery, band and QA retrieval, and DEM retrieval.
package imagery

import (
	"context"
	"fmt"

	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/sensors"
	"github.com/chrissnell/sebal/internal/types"
)

// ErrUpstreamUnavailable is returned, wrapped, for every imagery or DEM
// retrieval failure.
var ErrUpstreamUnavailable = types.ErrUpstreamUnavailable

// SceneData is everything the preprocessor needs from one scene.
type SceneData struct {
	Meta types.SceneMetadata

	// Bands is keyed by canonical band. Values are Collection 2 DNs unless
	// Scaled is set, in which case reflectance is unitless and the thermal
	// band is brightness temperature in K. QA holds QA_PIXEL bit flags.
	Bands  map[sensors.Band]raster.Layer
	Scaled bool
}

// Band returns a band or an error naming what is missing.
func (s SceneData) Band(b sensors.Band) (raster.Layer, error) {
	l, ok := s.Bands[b]
	if !ok || l == nil {
		return nil, fmt.Errorf("scene %s: missing %s band", s.Meta.ID, b)
	}
	return l, nil
}

// Source is implemented by anything that can serve scenes and elevation.
type Source interface {
	// QueryScenes lists the scenes of one generation that cover the
	// footprint within the date range. An empty result is not an error.
	QueryScenes(ctx context.Context, fp types.Footprint, dr types.DateRange, gen types.SensorGeneration) ([]types.SceneMetadata, error)

	// LoadScene returns bands and QA flags for one scene.
	LoadScene(ctx context.Context, meta types.SceneMetadata) (SceneData, error)

	// LoadDEM returns elevation in metres aligned to g.
	LoadDEM(ctx context.Context, fp types.Footprint, g raster.Grid) (raster.Layer, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}

// Matches reports whether a scene is a candidate for fp. A zero path or row
// in fp matches any. When both the footprint polygon and the scene grid are
// known, the scene extent must intersect the footprint bounds.
func Matches(fp types.Footprint, md types.SceneMetadata) bool {
	if fp.Path != 0 && md.Path != fp.Path {
		return false
	}
	if fp.Row != 0 && md.Row != fp.Row {
		return false
	}
	if len(fp.Polygon) == 0 || md.Grid.Validate() != nil {
		return true
	}
	return md.Grid.Bound().Intersects(fp.Bound())
}
