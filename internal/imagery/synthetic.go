package imagery

import (
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/sensors"
	"github.com/chrissnell/sebal/internal/types"
)

// SyntheticScene builds a scaled scene on meta.Grid that grades from bare
// hot soil at the first pixel to dense cool canopy at the last. Every pixel
// carries the given QA_PIXEL flags. It is used for dry runs and tests.
func SyntheticScene(meta types.SceneMetadata, qa uint16) (SceneData, error) {
	if err := meta.Grid.Validate(); err != nil {
		return SceneData{}, err
	}
	n := meta.Grid.Size()
	bands := append(append([]sensors.Band{}, sensors.ReflectiveBands...), sensors.Thermal, sensors.QA)
	values := make(map[sensors.Band][]float64, len(bands))
	for _, b := range bands {
		values[b] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		f := 0.0
		if n > 1 {
			f = float64(i) / float64(n-1)
		}
		values[sensors.Blue][i] = 0.08
		values[sensors.Green][i] = 0.1 - 0.02*f
		values[sensors.Red][i] = 0.25 - 0.2*f
		values[sensors.NIR][i] = 0.25 + 0.25*f
		values[sensors.SWIR1][i] = 0.3 - 0.15*f
		values[sensors.SWIR2][i] = 0.25 - 0.15*f
		values[sensors.Thermal][i] = 318 - 23*f
		values[sensors.QA][i] = float64(qa)
	}

	sd := SceneData{Meta: meta, Bands: make(map[sensors.Band]raster.Layer, len(bands)), Scaled: true}
	for _, b := range bands {
		l, err := raster.NewDense(string(b), meta.Grid, values[b], nil)
		if err != nil {
			return SceneData{}, err
		}
		sd.Bands[b] = l
	}
	return sd, nil
}
