package solar

import (
	"math"
	"testing"
	"time"
)

func TestInverseRelativeDistance(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want float64
	}{
		// Perihelion and aphelion
		{"early January", time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), 1.0344},
		{"early July", time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC), 0.9670},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InverseRelativeDistance(tt.t)
			if math.Abs(got-tt.want) > 0.002 {
				t.Errorf("dr = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestDeclination(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want float64 // degrees
	}{
		{"June solstice", time.Date(2024, 6, 20, 21, 0, 0, 0, time.UTC), 23.44},
		{"December solstice", time.Date(2024, 12, 21, 9, 0, 0, 0, time.UTC), -23.44},
		{"March equinox", time.Date(2024, 3, 20, 3, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := radToDeg(Declination(tt.t))
			if math.Abs(got-tt.want) > 0.05 {
				t.Errorf("declination = %.3f°, want %.2f°", got, tt.want)
			}
		})
	}
}

func TestDaylightHours(t *testing.T) {
	if got := DaylightHours(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), 0); math.Abs(got-12) > 0.05 {
		t.Errorf("equator equinox day length = %.2f, want 12", got)
	}
	if got := DaylightHours(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), 80); math.Abs(got-24) > 1e-9 {
		t.Errorf("arctic summer day length = %.2f, want 24", got)
	}
	if got := DaylightHours(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC), -80); got != 0 {
		t.Errorf("antarctic winter day length = %.2f, want 0", got)
	}
}

func TestExtraterrestrial(t *testing.T) {
	// FAO-56 example 8: 3 September, 20°S, Ra = 32.2 MJ m⁻² day⁻¹.
	day := time.Date(2015, 9, 3, 0, 0, 0, 0, time.UTC)
	if got := ExtraterrestrialDaily(day, -20); math.Abs(got-32.2) > 0.6 {
		t.Errorf("daily Ra = %.2f, want 32.2", got)
	}

	// The hourly values across a day integrate to the daily value.
	sum := 0.0
	for h := 0; h < 24; h++ {
		sum += ExtraterrestrialHourly(day.Add(time.Duration(h)*time.Hour+30*time.Minute), -20, 0)
	}
	if daily := ExtraterrestrialDaily(day, -20); math.Abs(sum-daily) > 0.5 {
		t.Errorf("hourly sum = %.2f, daily = %.2f", sum, daily)
	}

	if got := ExtraterrestrialHourly(time.Date(2015, 9, 3, 0, 30, 0, 0, time.UTC), -20, 0); got != 0 {
		t.Errorf("midnight Ra = %.3f, want 0", got)
	}
}

func TestCosZenithNoon(t *testing.T) {
	// Near the equinox at solar noon on the equator the sun is overhead.
	ts := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	ts = ts.Add(-time.Duration(EquationOfTime(ts) * float64(time.Minute)))
	if got := CosZenith(ts, 0, 0); got < 0.999 {
		t.Errorf("cos zenith = %.4f, want ~1", got)
	}
}
