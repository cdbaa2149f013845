package types

import (
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

func TestFootprintValidate(t *testing.T) {
	square := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}

	tests := []struct {
		name    string
		fp      Footprint
		wantErr bool
	}{
		{"valid square", Footprint{Path: 222, Row: 81, Polygon: square}, false},
		{"no polygon", Footprint{Path: 222, Row: 81}, true},
		{"open ring", Footprint{Polygon: orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}}, true},
		{"degenerate line", Footprint{Polygon: orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fp.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGeometry) {
					t.Fatalf("expected ErrInvalidGeometry, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	d := DateRange{
		Start: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if d.Empty() {
		t.Fatalf("one-day window reported empty")
	}
	if !d.Contains(d.Start) || d.Contains(d.End) {
		t.Errorf("window must include Start and exclude End")
	}
	if !(DateRange{Start: d.End, End: d.Start}).Empty() {
		t.Errorf("inverted window should be empty")
	}
}

func TestParseSensorGeneration(t *testing.T) {
	for in, want := range map[string]SensorGeneration{
		"LANDSAT_8": Landsat8,
		"l9":        Landsat9,
		"landsat-5": Landsat5,
		"LE07":      Landsat7,
	} {
		got, err := ParseSensorGeneration(in)
		if err != nil || got != want {
			t.Errorf("ParseSensorGeneration(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseSensorGeneration("SENTINEL_2"); err == nil {
		t.Errorf("expected an error for an unsupported sensor")
	}
	if Landsat7.Family() != FamilyA || Landsat9.Family() != FamilyB {
		t.Errorf("family mapping is wrong")
	}
}

func TestOutputName(t *testing.T) {
	m := SceneMetadata{Sensor: Landsat8, Path: 222, Row: 81, Acquired: time.Date(2024, 1, 15, 13, 20, 0, 0, time.UTC)}
	if got := m.OutputName(); got != "LC08_222081_20240115" {
		t.Errorf("OutputName() = %q", got)
	}
}
