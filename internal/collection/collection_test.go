package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/types"
)

var testFootprint = types.Footprint{
	Path: 222,
	Row:  81,
	Polygon: orb.Polygon{{
		{-50.1, -23.3}, {-50.0, -23.3}, {-50.0, -23.2}, {-50.1, -23.2}, {-50.1, -23.3},
	}},
}

// dupSource returns the same scene for every generation queried, which a
// real catalog with overlapping product listings can do.
type dupSource struct {
	*imagery.MemorySource
}

func (d dupSource) QueryScenes(ctx context.Context, fp types.Footprint, dr types.DateRange, _ types.SensorGeneration) ([]types.SceneMetadata, error) {
	return d.MemorySource.QueryScenes(ctx, fp, dr, types.Landsat8)
}

func scene(id string, gen types.SensorGeneration, acquired time.Time, cloud float64) imagery.SceneData {
	return imagery.SceneData{Meta: types.SceneMetadata{
		ID: id, Sensor: gen, Acquired: acquired, CloudCover: cloud, Path: 222, Row: 81,
	}}
}

func TestBuildCollection(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)

	src := imagery.NewMemorySource()
	src.AddScene(scene("L8-c", types.Landsat8, base.AddDate(0, 0, 20), 5))
	src.AddScene(scene("L7-a", types.Landsat7, base.AddDate(0, 0, 2), 10))
	src.AddScene(scene("L9-b", types.Landsat9, base.AddDate(0, 0, 10), 80))
	src.AddScene(scene("L5-z", types.Landsat5, base.AddDate(0, 0, 20), 0))
	src.AddScene(scene("L8-late", types.Landsat8, base.AddDate(0, 2, 0), 0))

	dr := types.DateRange{Start: base, End: base.AddDate(0, 1, 0)}

	tests := []struct {
		name     string
		cloudMax float64
		gens     []types.SensorGeneration
		want     []string
	}{
		{"all sensors", 70, nil, []string{"L7-a", "L5-z", "L8-c"}},
		{"cloud threshold inclusive", 10, nil, []string{"L7-a", "L5-z", "L8-c"}},
		{"strict cloud", 5, nil, []string{"L5-z", "L8-c"}},
		{"cloudy allowed", 100, nil, []string{"L7-a", "L9-b", "L5-z", "L8-c"}},
		{"family B only", 100, []types.SensorGeneration{types.Landsat8, types.Landsat9}, []string{"L9-b", "L8-c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := BuildCollection(ctx, src, testFootprint, dr, tt.cloudMax, tt.gens)
			if err != nil {
				t.Fatal(err)
			}
			if c.Count != len(tt.want) {
				t.Fatalf("Count = %d, want %d", c.Count, len(tt.want))
			}
			for i, id := range tt.want {
				if c.Scenes[i].ID != id {
					t.Errorf("scene %d = %s, want %s", i, c.Scenes[i].ID, id)
				}
			}
		})
	}
}

func TestBuildCollectionEmptyWindow(t *testing.T) {
	src := imagery.NewMemorySource()
	src.AddScene(scene("L8-a", types.Landsat8, time.Date(2024, 1, 5, 13, 0, 0, 0, time.UTC), 0))

	dr := types.DateRange{
		Start: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	c, err := BuildCollection(context.Background(), src, testFootprint, dr, 70, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Count != 0 || len(c.Scenes) != 0 {
		t.Errorf("expected empty collection, got %+v", c)
	}

	inverted := types.DateRange{Start: dr.End, End: dr.Start}
	if c, err := BuildCollection(context.Background(), src, testFootprint, inverted, 70, nil); err != nil || c.Count != 0 {
		t.Errorf("inverted window: %v, %d scenes", err, c.Count)
	}
}

func TestBuildCollectionDedupe(t *testing.T) {
	mem := imagery.NewMemorySource()
	acquired := time.Date(2024, 1, 5, 13, 0, 0, 0, time.UTC)
	mem.AddScene(scene("L8-a", types.Landsat8, acquired, 0))

	dr := types.DateRange{Start: acquired.AddDate(0, 0, -1), End: acquired.AddDate(0, 0, 1)}
	c, err := BuildCollection(context.Background(), dupSource{mem}, testFootprint, dr, 70, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Count != 1 {
		t.Errorf("Count = %d, want 1 after dedupe", c.Count)
	}
}

func TestBuildCollectionErrors(t *testing.T) {
	dr := types.DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}

	src := imagery.NewMemorySource()
	if _, err := BuildCollection(context.Background(), src, types.Footprint{Path: 1, Row: 1}, dr, 70, nil); !errors.Is(err, types.ErrInvalidGeometry) {
		t.Errorf("empty polygon: got %v", err)
	}

	src.QueryErr = errors.New("timeout")
	if _, err := BuildCollection(context.Background(), src, testFootprint, dr, 70, nil); !errors.Is(err, imagery.ErrUpstreamUnavailable) {
		t.Errorf("upstream failure: got %v", err)
	}
}
