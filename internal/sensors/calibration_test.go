package sensors

import (
	"math"
	"testing"

	"github.com/chrissnell/sebal/internal/types"
)

func TestForSelectsFamily(t *testing.T) {
	tests := []struct {
		gen     types.SensorGeneration
		family  types.SensorFamily
		thermal string
		nir     string
	}{
		{types.Landsat5, types.FamilyA, "ST_B6", "SR_B4"},
		{types.Landsat7, types.FamilyA, "ST_B6", "SR_B4"},
		{types.Landsat8, types.FamilyB, "ST_B10", "SR_B5"},
		{types.Landsat9, types.FamilyB, "ST_B10", "SR_B5"},
	}

	for _, tt := range tests {
		t.Run(string(tt.gen), func(t *testing.T) {
			c, err := For(tt.gen)
			if err != nil {
				t.Fatalf("For(%s): %v", tt.gen, err)
			}
			if c.Family() != tt.family {
				t.Errorf("family %v, want %v", c.Family(), tt.family)
			}
			if c.SourceBand(Thermal) != tt.thermal || c.SourceBand(NIR) != tt.nir {
				t.Errorf("band mapping thermal=%s nir=%s", c.SourceBand(Thermal), c.SourceBand(NIR))
			}
		})
	}

	if _, err := For("SENTINEL_2"); err == nil {
		t.Errorf("expected error for unsupported sensor")
	}
}

func TestAlbedoWeights(t *testing.T) {
	ones := []float64{1, 1, 1, 1, 1, 1}

	a, _ := For(types.Landsat5)
	b, _ := For(types.Landsat8)

	if got := a.Albedo(ones); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("TM/ETM+ weights sum to %.4f, want 1.0", got)
	}
	if got := b.Albedo(ones); math.Abs(got-1.001) > 1e-12 {
		t.Errorf("OLI weights sum to %.4f, want 1.001", got)
	}

	r := []float64{0.05, 0.08, 0.06, 0.35, 0.2, 0.1}
	if a.Albedo(r) == b.Albedo(r) {
		t.Errorf("families must not share albedo coefficients")
	}
}

func TestScaleFactors(t *testing.T) {
	c, _ := For(types.Landsat8)
	if got := c.Reflectance(10000); math.Abs(got-0.075) > 1e-9 {
		t.Errorf("Reflectance(10000) = %v", got)
	}
	if got := c.BrightnessTemperature(44000); math.Abs(got-299.39288) > 1e-5 {
		t.Errorf("BrightnessTemperature(44000) = %v", got)
	}
}

func TestMasked(t *testing.T) {
	a, _ := For(types.Landsat7)
	b, _ := For(types.Landsat9)

	clear := uint16(1 << 6) // clear bit only
	if a.Masked(clear) || b.Masked(clear) {
		t.Errorf("clear pixel should not be masked")
	}
	for _, bit := range []uint16{qaFill, qaDilatedCloud, qaCloud, qaCloudShadow} {
		if !a.Masked(bit) || !b.Masked(bit) {
			t.Errorf("bit %b should be masked for both families", bit)
		}
	}
	if a.Masked(qaCirrus) {
		t.Errorf("cirrus bit is unused on TM/ETM+")
	}
	if !b.Masked(qaCirrus) {
		t.Errorf("cirrus bit should be masked on OLI")
	}
}
