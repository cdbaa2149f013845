// Package types holds the data model shared by the ET engine: footprints,
// date windows, sensor generations and scene metadata.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidGeometry marks a footprint or scene geometry that is empty or
// malformed. Scenes failing with it are skipped, never processed.
var ErrInvalidGeometry = errors.New("invalid geometry")

// ErrUpstreamUnavailable wraps every failure of an external collaborator
// (imagery, elevation, meteorology). It is recoverable: the affected scene
// is skipped, the run continues.
var ErrUpstreamUnavailable = errors.New("upstream collaborator unavailable")

// Footprint identifies a WRS path/row and the polygon used to query imagery
// and bound statistical reductions.
type Footprint struct {
	Path    int         `json:"path" yaml:"path"`
	Row     int         `json:"row" yaml:"row"`
	Polygon orb.Polygon `json:"polygon" yaml:"-"`
}

// Validate checks that the footprint polygon is usable.
func (f Footprint) Validate() error {
	if len(f.Polygon) == 0 {
		return fmt.Errorf("%w: footprint %03d/%03d has no polygon", ErrInvalidGeometry, f.Path, f.Row)
	}
	for i, ring := range f.Polygon {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d has %d points", ErrInvalidGeometry, i, len(ring))
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, i)
		}
	}
	if planar.Area(f.Polygon) == 0 {
		return fmt.Errorf("%w: footprint %03d/%03d has zero area", ErrInvalidGeometry, f.Path, f.Row)
	}
	return nil
}

// Bound returns the footprint's bounding box.
func (f Footprint) Bound() orb.Bound {
	return f.Polygon.Bound()
}

// String renders the path/row as used in scene identifiers.
func (f Footprint) String() string {
	return fmt.Sprintf("%03d%03d", f.Path, f.Row)
}

// DateRange is a half-open acquisition window [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Empty reports whether the window contains no instant.
func (d DateRange) Empty() bool {
	return !d.End.After(d.Start)
}

// Contains reports whether t falls inside the window.
func (d DateRange) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}
