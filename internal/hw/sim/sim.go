// Package sim is a kinematic differential base that implements both the
// actuator and the heading sensor. It backs mock mode and the controller
// integration tests.
package sim

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cjeanneret/GyroDrive/internal/debug"
)

// ErrSensor is returned by Angle while injected sensor faults remain.
var ErrSensor = errors.New("simulated sensor fault")

// Base integrates the last commanded speed and turn rate over clock time.
type Base struct {
	clock clock.Clock
	drift float64 // deg of heading error per meter traveled

	mu         sync.Mutex
	speed      float64 // mm/s
	steering   float64 // deg/s
	heading    float64
	distance   float64
	last       time.Time
	stalled    bool
	sensorErrs int
}

// Option customizes a simulated Base.
type Option func(*Base)

// WithDrift makes the base veer by degPerMeter while moving forward, like a
// robot with mismatched wheels. Positive values veer right.
func WithDrift(degPerMeter float64) Option {
	return func(b *Base) { b.drift = degPerMeter }
}

// New creates a stopped base. clk may be nil for the wall clock.
func New(clk clock.Clock, opts ...Option) *Base {
	if clk == nil {
		clk = clock.New()
	}
	b := &Base{clock: clk, last: clk.Now()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Drive implements the actuator.
func (b *Base) Drive(speed, steering int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.speed, b.steering = float64(speed), float64(steering)
	debug.Trace("sim: drive (%d, %d)", speed, steering)
	return nil
}

// DistanceTraveled implements the actuator.
func (b *Base) DistanceTraveled() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return int(math.Round(b.distance)), nil
}

// Angle implements the heading sensor.
func (b *Base) Angle() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	if b.sensorErrs > 0 {
		b.sensorErrs--
		return 0, ErrSensor
	}
	return int(math.Round(b.heading)), nil
}

// ResetAngle implements the heading sensor.
func (b *Base) ResetAngle(angle int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.heading = float64(angle)
	return nil
}

// SetStalled freezes the base in place while commands are still accepted,
// as with a wheel jammed against an obstacle.
func (b *Base) SetStalled(stalled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.stalled = stalled
}

// FailSensor makes the next n Angle calls return ErrSensor.
func (b *Base) FailSensor(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sensorErrs = n
}

// Command returns the last commanded speed and steering.
func (b *Base) Command() (speed, steering int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.speed), int(b.steering)
}

func (b *Base) advance() {
	now := b.clock.Now()
	dt := now.Sub(b.last).Seconds()
	b.last = now
	if b.stalled || dt <= 0 {
		return
	}
	moved := b.speed * dt
	b.distance += moved
	b.heading += b.steering*dt + b.drift*math.Abs(moved)/1000
}
