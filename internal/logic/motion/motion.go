package motion

import (
	"errors"
	"time"

	"github.com/cjeanneret/GyroDrive/internal/logic/heading"
)

// Actuator is a two-wheel differential drive.
// Drive commands continuous motion until the next call: speed in mm/s,
// steering in deg/s (positive turns right). DistanceTraveled is cumulative
// in mm and increases while driving forward.
type Actuator interface {
	Drive(speed, steering int) error
	DistanceTraveled() (int, error)
}

// HeadingSensor is a relative gyro. Angle is the accumulated heading in
// degrees since the last reset, increasing clockwise and never wrapped.
type HeadingSensor interface {
	Angle() (int, error)
	ResetAngle(angle int) error
}

var (
	// ErrSensorUnavailable is returned when the heading sensor fails twice in a row
	// or reports a value outside the configured limit.
	ErrSensorUnavailable = errors.New("heading sensor unavailable")
	// ErrActuatorFault is returned when the drive base rejects a command.
	ErrActuatorFault = errors.New("actuator fault")
	// ErrTimeoutExceeded is returned when a control loop runs out of ticks or time.
	ErrTimeoutExceeded = errors.New("motion timeout exceeded")
	// ErrInvalidTarget is returned before any motion for out-of-range requests.
	ErrInvalidTarget = errors.New("invalid motion target")
)

// Result describes what a motion call achieved. It is returned alongside
// errors too, holding whatever was reached before the failure.
type Result struct {
	Heading     int               // last sensor reading (drift, for straight runs)
	Distance    int               // mm traveled during the call
	Direction   heading.Direction // turn direction, None for straight runs and no-op turns
	Ticks       int               // control ticks waited
	Corrections int               // heading corrections started while driving straight
	Elapsed     time.Duration
}

// Sample is one control tick, as seen by a Recorder.
type Sample struct {
	Op       string `csv:"op"`
	Phase    string `csv:"phase"`
	Tick     int    `csv:"tick"`
	Heading  int    `csv:"heading"`
	Speed    int    `csv:"speed"`
	Steering int    `csv:"steering"`
	Distance int    `csv:"distance"`
}

// Recorder receives every control tick. Implementations must not block.
type Recorder interface {
	Record(s Sample) error
}
