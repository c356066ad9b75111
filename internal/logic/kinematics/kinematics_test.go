package kinematics

import (
	"math"
	"testing"

	"github.com/cjeanneret/GyroDrive/internal/config"
)

func newModelConfig(wheel, track, maxRate float64) *config.Config {
	return &config.Config{
		DriveBase: config.DriveBaseConfig{
			WheelDiameterMm: wheel,
			AxleTrackMm:     track,
			MaxWheelDegPerS: maxRate,
		},
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestModel_MaxSpeed(t *testing.T) {
	m := NewModel(newModelConfig(56, 114, 720))
	// Two revolutions per second of a 56 mm wheel.
	want := 2 * math.Pi * 56
	if got := m.MaxSpeed(); !approx(got, want) {
		t.Errorf("MaxSpeed() = %v, want %v", got, want)
	}
}

func TestModel_WheelSpeeds(t *testing.T) {
	m := NewModel(newModelConfig(56, 114, 720))
	halfTrack := 57.0
	cases := []struct {
		name            string
		speed, steering int
		left, right     float64
	}{
		{"stopped", 0, 0, 0, 0},
		{"forward", 200, 0, 200, 200},
		{"reverse", -150, 0, -150, -150},
		{"spin_right", 0, 90, math.Pi / 2 * halfTrack, -math.Pi / 2 * halfTrack},
		{"spin_left", 0, -90, -math.Pi / 2 * halfTrack, math.Pi / 2 * halfTrack},
		{"arc_right", 100, 45, 100 + math.Pi/4*halfTrack, 100 - math.Pi/4*halfTrack},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, r := m.WheelSpeeds(tc.speed, tc.steering)
			if !approx(l, tc.left) || !approx(r, tc.right) {
				t.Errorf("WheelSpeeds(%d, %d) = (%v, %v), want (%v, %v)",
					tc.speed, tc.steering, l, r, tc.left, tc.right)
			}
		})
	}
}

func TestModel_PowersStraight(t *testing.T) {
	m := NewModel(newModelConfig(56, 114, 720))
	l, r, sat := m.Powers(100, 0)
	want := 100 / m.MaxSpeed()
	if !approx(l, want) || !approx(r, want) {
		t.Errorf("Powers(100, 0) = (%v, %v), want %v each", l, r, want)
	}
	if sat {
		t.Error("Powers(100, 0) should not saturate")
	}
}

func TestModel_PowersSaturationKeepsRatio(t *testing.T) {
	m := NewModel(newModelConfig(56, 114, 720))
	wl, wr := m.WheelSpeeds(1000, 30)
	l, r, sat := m.Powers(1000, 30)
	if !sat {
		t.Fatal("Powers(1000, 30) should saturate")
	}
	if !approx(math.Max(math.Abs(l), math.Abs(r)), 1) {
		t.Errorf("peak power = %v, want 1", math.Max(math.Abs(l), math.Abs(r)))
	}
	if !approx(l/r, wl/wr) {
		t.Errorf("power ratio %v differs from wheel ratio %v", l/r, wl/wr)
	}
}

func TestModel_BodyInvertsPowers(t *testing.T) {
	m := NewModel(newModelConfig(56, 114, 720))
	cases := []struct{ speed, steering int }{
		{0, 0}, {200, 0}, {0, 45}, {0, -8}, {150, -20}, {-100, 10},
	}
	for _, tc := range cases {
		l, r, sat := m.Powers(tc.speed, tc.steering)
		if sat {
			t.Fatalf("Powers(%d, %d) saturated unexpectedly", tc.speed, tc.steering)
		}
		speed, steering := m.Body(l, r)
		if math.Abs(speed-float64(tc.speed)) > 1e-6 || math.Abs(steering-float64(tc.steering)) > 1e-6 {
			t.Errorf("Body(Powers(%d, %d)) = (%v, %v)", tc.speed, tc.steering, speed, steering)
		}
	}
}

func TestModel_WheelRate(t *testing.T) {
	m := NewModel(newModelConfig(100, 100, 720))
	// One circumference per second is one revolution per second.
	if got := m.WheelRate(math.Pi * 100); !approx(got, 360) {
		t.Errorf("WheelRate(circumference) = %v, want 360", got)
	}
}
