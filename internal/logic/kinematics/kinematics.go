package kinematics

import (
	"math"

	"github.com/cjeanneret/GyroDrive/internal/config"
)

// Model converts body commands (forward speed, turn rate) to wheel motion
// for a two-wheel differential base. Positive turn rates are clockwise:
// the left wheel runs faster than the right one.
type Model struct {
	circumference   float64 // mm per wheel revolution
	halfTrack       float64 // mm from the base center to each wheel
	maxWheelDegPerS float64
}

// NewModel creates a kinematic model from the drive base configuration.
func NewModel(cfg *config.Config) *Model {
	db := cfg.DriveBase
	return &Model{
		circumference:   math.Pi * db.WheelDiameterMm,
		halfTrack:       db.AxleTrackMm / 2,
		maxWheelDegPerS: db.MaxWheelDegPerS,
	}
}

// WheelSpeeds returns the left and right wheel surface speeds in mm/s for a
// forward speed in mm/s and a turn rate in deg/s.
func (m *Model) WheelSpeeds(speed, steering int) (left, right float64) {
	omega := float64(steering) * math.Pi / 180
	v := float64(speed)
	return v + omega*m.halfTrack, v - omega*m.halfTrack
}

// WheelRate converts a wheel surface speed in mm/s to a wheel rate in deg/s.
func (m *Model) WheelRate(mmPerS float64) float64 {
	return mmPerS / m.circumference * 360
}

// MaxSpeed is the forward speed in mm/s reached at full power.
func (m *Model) MaxSpeed() float64 {
	return m.maxWheelDegPerS / 360 * m.circumference
}

// Powers returns normalized motor powers in [-1, 1]. When a wheel would
// need more than full power both are scaled down by the same factor, so
// the turn radius is kept and saturated is true.
func (m *Model) Powers(speed, steering int) (left, right float64, saturated bool) {
	l, r := m.WheelSpeeds(speed, steering)
	left = m.WheelRate(l) / m.maxWheelDegPerS
	right = m.WheelRate(r) / m.maxWheelDegPerS
	if peak := math.Max(math.Abs(left), math.Abs(right)); peak > 1 {
		left /= peak
		right /= peak
		saturated = true
	}
	return left, right, saturated
}

// Body is the inverse of Powers: it returns the forward speed in mm/s and
// the turn rate in deg/s produced by a pair of motor powers.
func (m *Model) Body(leftPower, rightPower float64) (speed, steering float64) {
	l := leftPower * m.MaxSpeed()
	r := rightPower * m.MaxSpeed()
	speed = (l + r) / 2
	if m.halfTrack > 0 {
		steering = (l - r) / (2 * m.halfTrack) * 180 / math.Pi
	}
	return speed, steering
}
