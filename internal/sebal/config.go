// Package sebal implements the Surface Energy Balance Algorithm for Land:
// per-scene biophysical preprocessing, radiation and soil heat flux,
// endmember selection, the iterative sensible heat solver and scaling of
// instantaneous latent heat to daily evapotranspiration.
package sebal

import (
	"errors"
	"fmt"
)

// ETMethod selects how instantaneous ET is scaled to a daily total.
type ETMethod string

const (
	// ReferenceFraction scales by the reference ET fraction:
	// ET24 = max(ETinst/ETrInstant, 0) * ETr24.
	ReferenceFraction ETMethod = "reference_fraction"
	// EvaporativeFraction scales by EF = LE/(Rn-G) and daily net radiation.
	EvaporativeFraction ETMethod = "evaporative_fraction"
)

// LongwaveReference selects the temperature radiating incoming longwave.
type LongwaveReference string

const (
	LongwaveAirTemperature LongwaveReference = "air_temperature"
	LongwaveColdPixel      LongwaveReference = "cold_pixel"
)

// EndmemberConfig holds the percentile thresholds of the endmember search,
// all in percent.
type EndmemberConfig struct {
	ColdNDVIPercent   float64 `yaml:"cold_ndvi_percent" json:"cold_ndvi_percent"`
	ColdLSTPercentile float64 `yaml:"cold_lst_percentile" json:"cold_lst_percentile"`
	HotNDVIPercent    float64 `yaml:"hot_ndvi_percent" json:"hot_ndvi_percent"`
	HotLSTPercentile  float64 `yaml:"hot_lst_percentile" json:"hot_lst_percentile"`
}

// SolverConfig tunes the sensible heat flux iteration.
type SolverConfig struct {
	Iterations int `yaml:"iterations" json:"iterations"`
	// ColdHFraction is the share of available energy (Rn-G) assigned to
	// sensible heat at the cold endmember.
	ColdHFraction float64 `yaml:"cold_h_fraction" json:"cold_h_fraction"`
	// VegetationHeight at the weather station, in m.
	VegetationHeight float64 `yaml:"vegetation_height" json:"vegetation_height"`
}

// Config collects every tunable of one SEBAL run.
type Config struct {
	Endmember EndmemberConfig   `yaml:"endmember" json:"endmember"`
	Solver    SolverConfig      `yaml:"solver" json:"solver"`
	ETMethod  ETMethod          `yaml:"et_method" json:"et_method"`
	Longwave  LongwaveReference `yaml:"longwave_reference" json:"longwave_reference"`
	// LapseDatum is the reference elevation in m for the LST lapse-rate
	// correction.
	LapseDatum float64 `yaml:"lapse_datum" json:"lapse_datum"`
}

// DefaultConfig returns the reference parameterization.
func DefaultConfig() Config {
	return Config{
		Endmember: EndmemberConfig{
			ColdNDVIPercent:   5,
			ColdLSTPercentile: 20,
			HotNDVIPercent:    10,
			HotLSTPercentile:  20,
		},
		Solver: SolverConfig{
			Iterations:       14,
			ColdHFraction:    0,
			VegetationHeight: 0.5,
		},
		ETMethod: ReferenceFraction,
		Longwave: LongwaveAirTemperature,
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Endmember.ColdNDVIPercent == 0 {
		c.Endmember.ColdNDVIPercent = d.Endmember.ColdNDVIPercent
	}
	if c.Endmember.ColdLSTPercentile == 0 {
		c.Endmember.ColdLSTPercentile = d.Endmember.ColdLSTPercentile
	}
	if c.Endmember.HotNDVIPercent == 0 {
		c.Endmember.HotNDVIPercent = d.Endmember.HotNDVIPercent
	}
	if c.Endmember.HotLSTPercentile == 0 {
		c.Endmember.HotLSTPercentile = d.Endmember.HotLSTPercentile
	}
	if c.Solver.Iterations == 0 {
		c.Solver.Iterations = d.Solver.Iterations
	}
	if c.Solver.VegetationHeight == 0 {
		c.Solver.VegetationHeight = d.Solver.VegetationHeight
	}
	if c.ETMethod == "" {
		c.ETMethod = d.ETMethod
	}
	if c.Longwave == "" {
		c.Longwave = d.Longwave
	}
	return c
}

// Validate checks ranges after defaults are applied.
func (c Config) Validate() error {
	var errs []error
	for name, p := range map[string]float64{
		"cold_ndvi_percent":   c.Endmember.ColdNDVIPercent,
		"cold_lst_percentile": c.Endmember.ColdLSTPercentile,
		"hot_ndvi_percent":    c.Endmember.HotNDVIPercent,
		"hot_lst_percentile":  c.Endmember.HotLSTPercentile,
	} {
		if p <= 0 || p >= 100 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 100), got %v", name, p))
		}
	}
	if c.Solver.Iterations < 1 {
		errs = append(errs, fmt.Errorf("solver iterations must be positive, got %d", c.Solver.Iterations))
	}
	if c.Solver.ColdHFraction < 0 || c.Solver.ColdHFraction >= 1 {
		errs = append(errs, fmt.Errorf("cold_h_fraction must be in [0, 1), got %v", c.Solver.ColdHFraction))
	}
	if c.Solver.VegetationHeight <= 0 {
		errs = append(errs, fmt.Errorf("vegetation_height must be positive, got %v", c.Solver.VegetationHeight))
	}
	switch c.ETMethod {
	case ReferenceFraction, EvaporativeFraction:
	default:
		errs = append(errs, fmt.Errorf("unknown et_method %q", c.ETMethod))
	}
	switch c.Longwave {
	case LongwaveAirTemperature, LongwaveColdPixel:
	default:
		errs = append(errs, fmt.Errorf("unknown longwave_reference %q", c.Longwave))
	}
	return errors.Join(errs...)
}
