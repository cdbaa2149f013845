package imagery

import (
	"context"
	"fmt"
	"sync"

	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/types"
)

// MemorySource serves scenes held in memory. It backs tests and synthetic
// runs, and can simulate collaborator outages.
type MemorySource struct {
	mu     sync.RWMutex
	scenes []SceneData
	dems   map[string]raster.Layer

	// QueryErr and LoadErr, when set, are returned wrapped in
	// ErrUpstreamUnavailable from the matching calls.
	QueryErr error
	LoadErr  map[string]error
}

// NewMemorySource returns an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{dems: make(map[string]raster.Layer), LoadErr: make(map[string]error)}
}

// AddScene registers a scene.
func (m *MemorySource) AddScene(s SceneData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, s)
}

// SetDEM registers the elevation layer for a footprint.
func (m *MemorySource) SetDEM(fp types.Footprint, dem raster.Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dems[fp.String()] = dem
}

// QueryScenes implements Source.
func (m *MemorySource) QueryScenes(ctx context.Context, fp types.Footprint, dr types.DateRange, gen types.SensorGeneration) ([]types.SceneMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.QueryErr != nil {
		return nil, unavailable("query scenes", m.QueryErr)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.SceneMetadata
	for _, s := range m.scenes {
		md := s.Meta
		if md.Sensor != gen || !dr.Contains(md.Acquired) || !Matches(fp, md) {
			continue
		}
		out = append(out, md)
	}
	return out, nil
}

// LoadScene implements Source.
func (m *MemorySource) LoadScene(ctx context.Context, meta types.SceneMetadata) (SceneData, error) {
	if err := ctx.Err(); err != nil {
		return SceneData{}, err
	}
	if err, ok := m.LoadErr[meta.ID]; ok {
		return SceneData{}, unavailable("load scene "+meta.ID, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.scenes {
		if s.Meta.ID == meta.ID {
			return s, nil
		}
	}
	return SceneData{}, unavailable("load scene", fmt.Errorf("scene %s not found", meta.ID))
}

// LoadDEM implements Source.
func (m *MemorySource) LoadDEM(ctx context.Context, fp types.Footprint, g raster.Grid) (raster.Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	dem, ok := m.dems[fp.String()]
	m.mu.RUnlock()

	if !ok {
		return nil, unavailable("load dem", fmt.Errorf("no elevation for footprint %s", fp))
	}
	if !dem.Grid().Equal(g) {
		return nil, fmt.Errorf("dem for %s: %w", fp, raster.ErrGridMismatch)
	}
	return dem, nil
}
