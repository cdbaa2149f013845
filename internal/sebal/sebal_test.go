package sebal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/chrissnell/sebal/internal/imagery"
	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/sensors"
	"github.com/chrissnell/sebal/internal/types"
)

// The synthetic scene is a 4x5 gradient from bare soil at (0,0) to dense
// vegetation at (3,4): reflectance shifts from red to NIR while brightness
// temperature falls from 318 K to 295 K.
var testGrid = raster.Grid{Rows: 4, Cols: 5, CRS: "EPSG:32722", Transform: [6]float64{0, 30, 0, 0, 0, -30}}

var testFootprint = types.Footprint{
	Path: 222,
	Row:  81,
	Polygon: orb.Polygon{{
		{-1, 1}, {151, 1}, {151, -121}, {-1, -121}, {-1, 1},
	}},
}

var testMeteo = meteo.Context{
	AirTemperatureC:   25,
	WindSpeed:         2.5,
	RelativeHumidity:  50,
	Rn24:              180,
	ETrInstant:        0.7,
	ETr24:             7,
	MeasurementHeight: 2,
}

var (
	bareSoil    = raster.Pixel{Row: 0, Col: 0}
	denseCanopy = raster.Pixel{Row: 3, Col: 4}
)

func syntheticScene(t *testing.T, qa uint16) (imagery.SceneData, raster.Layer) {
	t.Helper()
	n := testGrid.Size()
	values := map[sensors.Band][]float64{}
	for _, b := range append(append([]sensors.Band{}, sensors.ReflectiveBands...), sensors.Thermal, sensors.QA) {
		values[b] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		values[sensors.Blue][i] = 0.08
		values[sensors.Green][i] = 0.1 - 0.02*f
		values[sensors.Red][i] = 0.25 - 0.2*f
		values[sensors.NIR][i] = 0.25 + 0.25*f
		values[sensors.SWIR1][i] = 0.3 - 0.15*f
		values[sensors.SWIR2][i] = 0.25 - 0.15*f
		values[sensors.Thermal][i] = 318 - 23*f
		values[sensors.QA][i] = float64(qa)
	}

	sd := imagery.SceneData{
		Meta: types.SceneMetadata{
			ID:           "LC08_222081_20240115",
			Sensor:       types.Landsat8,
			Acquired:     time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC),
			SunElevation: 60,
			Path:         222,
			Row:          81,
			Grid:         testGrid,
		},
		Bands:  make(map[sensors.Band]raster.Layer),
		Scaled: true,
	}
	for b, v := range values {
		l, err := raster.NewDense(string(b), testGrid, v, nil)
		if err != nil {
			t.Fatal(err)
		}
		sd.Bands[b] = l
	}

	dem, err := raster.Filled("elevation", testGrid, 500)
	if err != nil {
		t.Fatal(err)
	}
	return sd, dem
}

func sample(t *testing.T, e raster.Engine, l raster.Layer, p raster.Pixel) float64 {
	t.Helper()
	v, ok, err := e.Sample(context.Background(), l, p)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("%s has no data at %v", l.Name(), p)
	}
	return v
}

func TestNDVIBounds(t *testing.T) {
	tests := []struct {
		name   string
		nir    float64
		red    float64
		want   float64
		wantOK bool
	}{
		{"vegetation", 0.5, 0.05, 0.45 / 0.55, true},
		{"bare", 0.25, 0.25, 0, true},
		{"zero denominator", 0, 0, 0, false},
		{"negative reflectance clamps high", 0.5, -0.1, 1, true},
		{"negative reflectance clamps low", -0.1, 0.5, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ndvi(tt.nir, tt.red)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("ndvi = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmissivity(t *testing.T) {
	tests := []struct {
		name    string
		lai     float64
		ndvi    float64
		wantENB float64
		wantE0  float64
	}{
		{"water", 0, -0.2, 0.985, 0.985},
		{"bare", 0, 0.05, 0.97, 0.95},
		{"sparse", 1, 0.4, 0.9733, 0.96},
		{"dense", 4, 0.8, 0.98, 0.98},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enb, e0 := emissivity(tt.lai, tt.ndvi)
			if math.Abs(enb-tt.wantENB) > 1e-9 || math.Abs(e0-tt.wantE0) > 1e-9 {
				t.Errorf("emissivity = (%v, %v), want (%v, %v)", enb, e0, tt.wantENB, tt.wantE0)
			}
		})
	}

	if got, want := lai(0.9), -math.Log((0.69-saviCap)/0.59)/0.91; math.Abs(got-want) > 1e-9 {
		t.Errorf("LAI at capped SAVI = %v, want %v", got, want)
	}
	if got := lai(-0.3); got != 0 {
		t.Errorf("LAI of negative SAVI = %v, want 0", got)
	}
}

func TestPreprocessGridAlignment(t *testing.T) {
	ctx := context.Background()
	e := raster.NewLocal(2)
	sd, dem := syntheticScene(t, 0)

	b, err := Preprocess(ctx, e, sd, testFootprint, dem, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	for _, l := range []raster.Layer{b.Albedo, b.NDVI, b.SAVI, b.LAI, b.E0, b.ENB, b.LST, b.Mask, b.DEM} {
		if !l.Grid().Equal(testGrid) {
			t.Errorf("%s is not on the scene grid", l.Name())
		}
	}

	st, err := e.Stats(ctx, b.NDVI)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != testGrid.Size() || st.Min < -1 || st.Max > 1 {
		t.Errorf("NDVI stats %+v", st)
	}

	// LST = BT / eNB^0.25 + 0.0065 * 500 at bare soil: eNB = 0.97.
	want := 318/math.Pow(0.97, 0.25) + 0.0065*500
	if got := sample(t, e, b.LST, bareSoil); math.Abs(got-want) > 1e-9 {
		t.Errorf("bare soil LST = %v, want %v", got, want)
	}

	shifted := testGrid
	shifted.Transform[0] = 15
	badDEM, _ := raster.Filled("elevation", shifted, 500)
	if _, err := Preprocess(ctx, e, sd, testFootprint, badDEM, DefaultConfig()); !errors.Is(err, raster.ErrGridMismatch) {
		t.Errorf("misaligned DEM: got %v", err)
	}

	badBand, _ := raster.Filled("nir", shifted, 0.3)
	sd.Bands[sensors.NIR] = badBand
	if _, err := Preprocess(ctx, e, sd, testFootprint, dem, DefaultConfig()); !errors.Is(err, raster.ErrGridMismatch) {
		t.Errorf("misaligned band: got %v", err)
	}
}

func TestPreprocessFootprintClip(t *testing.T) {
	ctx := context.Background()
	e := raster.NewLocal(1)
	sd, dem := syntheticScene(t, 0)

	// Only the first two columns.
	left := testFootprint
	left.Polygon = orb.Polygon{{{-1, 1}, {60, 1}, {60, -121}, {-1, -121}, {-1, 1}}}

	b, err := Preprocess(ctx, e, sd, left, dem, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	st, err := e.Stats(ctx, b.LST)
	if err != nil {
		t.Fatal(err)
	}
	if st.Count != 8 {
		t.Errorf("clipped LST has %d pixels, want 8", st.Count)
	}
	if _, ok, _ := e.Sample(ctx, b.Albedo, denseCanopy); ok {
		t.Error("pixel outside the footprint has data")
	}
}

func TestRadiationHandComputed(t *testing.T) {
	ctx := context.Background()
	e := raster.NewLocal(2)
	sd, dem := syntheticScene(t, 0)

	b, err := Preprocess(ctx, e, sd, testFootprint, dem, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	r, err := Radiation(ctx, e, b, testMeteo, testMeteo.AirTemperatureC+273.15)
	if err != nil {
		t.Fatal(err)
	}

	// Worked by hand for z = 500 m, Ta = 25 °C, RH = 50 %, sun elevation
	// 60°, 15 January (dr ≈ 1.0335): τ = 0.7535, Rs↓ = 921.9 W/m².
	tests := []struct {
		name  string
		layer raster.Layer
		px    raster.Pixel
		want  float64
	}{
		{"Rs down", r.ShortwaveIn, bareSoil, 921.9},
		{"Rn bare soil", r.Rn, bareSoil, 506.6},
		{"G bare soil", r.G, bareSoil, 127.5},
		{"Rn canopy", r.Rn, denseCanopy, 681.1},
		{"G canopy", r.G, denseCanopy, 48.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sample(t, e, tt.layer, tt.px); math.Abs(got-tt.want) > 1 {
				t.Errorf("got %.2f W/m², want %.1f ± 1", got, tt.want)
			}
		})
	}

	if tau := sample(t, e, r.Transmissivity, bareSoil); math.Abs(tau-0.7535) > 0.001 {
		t.Errorf("transmissivity = %.4f, want 0.7535", tau)
	}
}

func TestSelectEndmembers(t *testing.T) {
	ctx := context.Background()
	e := raster.NewLocal(2)
	sd, dem := syntheticScene(t, 0)

	b, err := Preprocess(ctx, e, sd, testFootprint, dem, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	m, err := SelectEndmembers(ctx, e, b, DefaultConfig().Endmember)
	if err != nil {
		t.Fatal(err)
	}
	if m.Cold.Pixel != denseCanopy {
		t.Errorf("cold endmember at %v, want %v", m.Cold.Pixel, denseCanopy)
	}
	if m.Hot.Pixel != bareSoil {
		t.Errorf("hot endmember at %v, want %v", m.Hot.Pixel, bareSoil)
	}
	if m.Hot.LST <= m.Cold.LST {
		t.Errorf("hot LST %.2f not above cold LST %.2f", m.Hot.LST, m.Cold.LST)
	}
	if want := math.Exp(5.62*m.Cold.NDVI - 5.809); math.Abs(m.Cold.Z0m-want) > 1e-12 {
		t.Errorf("cold z0m = %v, want %v", m.Cold.Z0m, want)
	}
}

func TestSelectEndmembersDegenerate(t *testing.T) {
	ctx := context.Background()
	e := raster.NewLocal(1)

	// A uniform scene puts both endmembers on the first pixel.
	sd, dem := syntheticScene(t, 0)
	sd.Bands[sensors.Red], _ = raster.Filled("red", testGrid, 0.1)
	sd.Bands[sensors.NIR], _ = raster.Filled("nir", testGrid, 0.3)
	sd.Bands[sensors.Thermal], _ = raster.Filled("thermal", testGrid, 300)
	b, err := Preprocess(ctx, e, sd, testFootprint, dem, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := SelectEndmembers(ctx, e, b, DefaultConfig().Endmember); !errors.Is(err, ErrEndmemberUnavailable) {
		t.Errorf("uniform scene: got %v", err)
	}
}

func solve(t *testing.T, cfg Config, met meteo.Context) (*Biophysical, *RadiationBudget, Endmembers, *SensibleHeat) {
	t.Helper()
	ctx := context.Background()
	e := raster.NewLocal(2)
	sd, dem := syntheticScene(t, 0)

	b, err := Preprocess(ctx, e, sd, testFootprint, dem, cfg)
	if err != nil {
		t.Fatal(err)
	}
	m, err := SelectEndmembers(ctx, e, b, cfg.Endmember)
	if err != nil {
		t.Fatal(err)
	}
	r, err := Radiation(ctx, e, b, met, met.AirTemperatureC+273.15)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SampleFluxes(ctx, e, r); err != nil {
		t.Fatal(err)
	}
	sh, err := SolveSensibleHeat(ctx, e, b, m, met, cfg.Solver, log.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return b, r, m, sh
}

func TestSensibleHeatEndmemberFluxes(t *testing.T) {
	e := raster.NewLocal(2)

	for _, frac := range []float64{0, 0.1} {
		cfg := DefaultConfig()
		cfg.Solver.ColdHFraction = frac
		_, _, m, sh := solve(t, cfg, testMeteo)

		hHot := sample(t, e, sh.H, m.Hot.Pixel)
		if want := m.Hot.Rn - m.Hot.G; math.Abs(hHot-want) > 1e-6 {
			t.Errorf("f=%v: hot H = %v, want Rn-G = %v", frac, hHot, want)
		}
		hCold := sample(t, e, sh.H, m.Cold.Pixel)
		if want := frac * (m.Cold.Rn - m.Cold.G); math.Abs(hCold-want) > 1e-6 {
			t.Errorf("f=%v: cold H = %v, want %v", frac, hCold, want)
		}
		if len(sh.Coeffs) != cfg.Solver.Iterations {
			t.Errorf("f=%v: %d calibrations recorded, want %d", frac, len(sh.Coeffs), cfg.Solver.Iterations)
		}
	}
}

func meanAbsDiff(t *testing.T, e raster.Engine, a, b raster.Layer) float64 {
	t.Helper()
	d, err := e.Map(context.Background(), "diff", func(v []float64) (float64, bool) {
		return math.Abs(v[0] - v[1]), true
	}, a, b)
	if err != nil {
		t.Fatal(err)
	}
	st, err := e.Stats(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	return st.Mean
}

func TestSensibleHeatConvergence(t *testing.T) {
	e := raster.NewLocal(2)
	var h []raster.Layer
	for _, n := range []int{14, 15, 16} {
		cfg := DefaultConfig()
		cfg.Solver.Iterations = n
		_, _, _, sh := solve(t, cfg, testMeteo)
		h = append(h, sh.H)
	}

	d1 := meanAbsDiff(t, e, h[0], h[1])
	d2 := meanAbsDiff(t, e, h[1], h[2])
	if d2 >= d1 {
		t.Errorf("|H(16)-H(15)| = %g not below |H(15)-H(14)| = %g", d2, d1)
	}
	if d1 > 0.01 {
		t.Errorf("H still moving by %g W/m² after 14 iterations", d1)
	}
}

func TestZeroWindDegenerates(t *testing.T) {
	met := testMeteo
	met.WindSpeed = 0

	p := NewProcessor(raster.NewLocal(2), testFootprint, log.Nop())
	sd, dem := syntheticScene(t, 0)
	out, err := p.ComputeDailyET(context.Background(), sd, met, dem, DefaultConfig())
	if err != nil {
		t.Fatalf("zero wind should complete, got %v", err)
	}
	if out.Stats.Valid != 0 {
		t.Errorf("zero wind produced %d valid pixels", out.Stats.Valid)
	}
	if !out.Degenerate {
		t.Error("zero wind result not marked degenerate")
	}
}

func TestZeroWindProductEncodesAsJSON(t *testing.T) {
	met := testMeteo
	met.WindSpeed = 0

	p := NewProcessor(raster.NewLocal(2), testFootprint, log.Nop())
	sd, dem := syntheticScene(t, 0)
	out, err := p.ComputeDailyET(context.Background(), sd, met, dem, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	b, err := out.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	product, err := DecodeProduct(b)
	if err != nil {
		t.Fatalf("DecodeProduct: %v", err)
	}
	if !product.Degenerate {
		t.Error("decoded product not marked degenerate")
	}
	if len(product.Calibration) == 0 {
		t.Fatal("no calibration entries")
	}
	for _, c := range product.Calibration {
		for _, v := range []float64{c.A, c.B, c.RahCold, c.RahHot, c.HCold, c.HHot} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("calibration %d holds non-finite value: %+v", c.Iteration, c)
			}
		}
	}
	if _, err := json.Marshal(product); err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
}

func TestComputeDailyET(t *testing.T) {
	ctx := context.Background()
	e := raster.NewLocal(2)
	p := NewProcessor(e, testFootprint, log.Nop())
	sd, dem := syntheticScene(t, 0)

	out, err := p.ComputeDailyET(ctx, sd, testMeteo, dem, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if out.ET.Name() != "LC08_222081_20240115" {
		t.Errorf("ET layer named %q", out.ET.Name())
	}
	if out.Stats.Valid != testGrid.Size() {
		t.Errorf("valid pixels = %d, want %d", out.Stats.Valid, testGrid.Size())
	}

	// Closure holds exactly at every pixel.
	for i := 0; i < testGrid.Size(); i++ {
		px := testGrid.PixelAt(i)
		rn, g, h, le := sample(t, e, out.Rn, px), sample(t, e, out.G, px), sample(t, e, out.H, px), sample(t, e, out.LE, px)
		if le != rn-g-h {
			t.Errorf("%v: LE %v != Rn-G-H %v", px, le, rn-g-h)
		}
	}

	if et := sample(t, e, out.ET, bareSoil); math.Abs(et) > 1e-6 {
		t.Errorf("hot endmember ET = %v, want 0", et)
	}
	if et := sample(t, e, out.ET, denseCanopy); et < 8 || et > 11 {
		t.Errorf("cold endmember ET = %.2f mm/day, want 8..11", et)
	}
	if out.Stats.Min < 0 {
		t.Errorf("negative daily ET %v", out.Stats.Min)
	}
	if len(out.Calibration) != DefaultConfig().Solver.Iterations+1 {
		t.Errorf("%d calibrations, want iterations+1", len(out.Calibration))
	}
}

func TestComputeDailyETEvaporativeFraction(t *testing.T) {
	ctx := context.Background()
	e := raster.NewLocal(2)
	p := NewProcessor(e, testFootprint, log.Nop())
	sd, dem := syntheticScene(t, 0)

	cfg := DefaultConfig()
	cfg.ETMethod = EvaporativeFraction
	out, err := p.ComputeDailyET(ctx, sd, testMeteo, dem, cfg)
	if err != nil {
		t.Fatal(err)
	}

	// The cold pixel evaporates all available energy: EF = 1.
	lst := out.Cold.LST
	want := 86400 * testMeteo.Rn24 / latentHeat(lst)
	if got := sample(t, e, out.ET, out.Cold.Pixel); math.Abs(got-want) > 1e-6 {
		t.Errorf("cold ET = %v, want %v", got, want)
	}
	if ef := sample(t, e, out.EF, out.Hot.Pixel); math.Abs(ef) > 1e-9 {
		t.Errorf("hot EF = %v, want 0", ef)
	}
}

func TestComputeDailyETDeterministic(t *testing.T) {
	ctx := context.Background()
	sd, dem := syntheticScene(t, 0)

	var encoded [][]byte
	for _, workers := range []int{1, 3, 1} {
		p := NewProcessor(raster.NewLocal(workers), testFootprint, log.Nop())
		out, err := p.ComputeDailyET(ctx, sd, testMeteo, dem, DefaultConfig())
		if err != nil {
			t.Fatal(err)
		}
		b, err := out.Encode()
		if err != nil {
			t.Fatal(err)
		}
		encoded = append(encoded, b)
	}
	for i := 1; i < len(encoded); i++ {
		if !bytes.Equal(encoded[0], encoded[i]) {
			t.Errorf("run %d produced different bytes", i)
		}
	}

	prod, err := DecodeProduct(encoded[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(prod.Layers) != 7 || prod.Layers[0].Name != "LC08_222081_20240115" {
		t.Errorf("decoded product has %d layers, first %q", len(prod.Layers), prod.Layers[0].Name)
	}
}

func TestComputeDailyETFullyClouded(t *testing.T) {
	p := NewProcessor(raster.NewLocal(2), testFootprint, log.Nop())
	sd, dem := syntheticScene(t, 1<<3)

	out, err := p.ComputeDailyET(context.Background(), sd, testMeteo, dem, DefaultConfig())
	if !errors.Is(err, ErrEndmemberUnavailable) {
		t.Errorf("expected ErrEndmemberUnavailable, got %v", err)
	}
	if out != nil {
		t.Error("a fully clouded scene produced a raster")
	}
}

func TestComputeDailyETInvalidFootprint(t *testing.T) {
	p := NewProcessor(raster.NewLocal(1), types.Footprint{Path: 1, Row: 1}, log.Nop())
	sd, dem := syntheticScene(t, 0)
	if _, err := p.ComputeDailyET(context.Background(), sd, testMeteo, dem, DefaultConfig()); !errors.Is(err, types.ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry, got %v", err)
	}
}

func TestConfig(t *testing.T) {
	cfg := Config{Solver: SolverConfig{Iterations: 20}}.WithDefaults()
	if cfg.Solver.Iterations != 20 || cfg.Endmember.ColdNDVIPercent != 5 || cfg.ETMethod != ReferenceFraction {
		t.Errorf("WithDefaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"percentile out of range", func(c *Config) { c.Endmember.HotNDVIPercent = 100 }},
		{"cold fraction too large", func(c *Config) { c.Solver.ColdHFraction = 1 }},
		{"unknown method", func(c *Config) { c.ETMethod = "priestley_taylor" }},
		{"unknown longwave", func(c *Config) { c.Longwave = "surface" }},
		{"negative iterations", func(c *Config) { c.Solver.Iterations = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
