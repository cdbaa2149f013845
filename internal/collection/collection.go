// Package collection assembles the multi-sensor scene collection for a
// footprint and date window.
package collection

import (
	"context"
	"fmt"
	"sort"

	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/types"
)

// Collection is a chronologically ordered, deduplicated scene list.
type Collection struct {
	Scenes []types.SceneMetadata
	Count  int
}

// BuildCollection queries every enabled sensor generation, keeps scenes at or
// below cloudMax percent cloud cover, and returns them sorted by acquisition
// time. No matching scenes is an empty collection, not an error.
func BuildCollection(ctx context.Context, src imagery.Source, fp types.Footprint, dr types.DateRange, cloudMax float64, gens []types.SensorGeneration) (Collection, error) {
	if err := fp.Validate(); err != nil {
		return Collection{}, err
	}
	if dr.Empty() {
		log.Infof("date window %s..%s is empty", dr.Start.Format("2006-01-02"), dr.End.Format("2006-01-02"))
		return Collection{Scenes: []types.SceneMetadata{}}, nil
	}
	if len(gens) == 0 {
		gens = types.AllSensors
	}

	seen := make(map[string]bool)
	scenes := []types.SceneMetadata{}

	for _, gen := range gens {
		if err := ctx.Err(); err != nil {
			return Collection{}, err
		}

		found, err := src.QueryScenes(ctx, fp, dr, gen)
		if err != nil {
			return Collection{}, fmt.Errorf("querying %s scenes for %s: %w", gen, fp, err)
		}

		kept := 0
		for _, s := range found {
			if s.CloudCover > cloudMax || seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			scenes = append(scenes, s)
			kept++
		}
		log.Debugf("%s: %d of %d scenes under %.0f%% cloud", gen, kept, len(found), cloudMax)
	}

	sort.SliceStable(scenes, func(i, j int) bool {
		if scenes[i].Acquired.Equal(scenes[j].Acquired) {
			return scenes[i].ID < scenes[j].ID
		}
		return scenes[i].Acquired.Before(scenes[j].Acquired)
	})

	log.Infof("collection for %s: %d scenes", fp, len(scenes))
	return Collection{Scenes: scenes, Count: len(scenes)}, nil
}
