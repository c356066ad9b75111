package drivebase

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/cjeanneret/GyroDrive/internal/debug"
	"github.com/cjeanneret/GyroDrive/internal/logic/kinematics"
)

// Wheel is one powered side of the base.
type Wheel interface {
	SetPower(power float64) error
	// Power is the signed power actually applied, after any floor.
	Power() float64
	Stop() error
	Disable() error
}

// DriveBase is a two-wheel differential drive without encoders. Distance
// is open-loop: the forward speed actually commanded, integrated over time.
type DriveBase struct {
	left, right Wheel
	model       *kinematics.Model
	clock       clock.Clock

	mu       sync.Mutex
	speed    float64 // mm/s after saturation
	distance float64 // mm
	last     time.Time
}

// New creates a stopped drive base. clk may be nil for the wall clock.
func New(left, right Wheel, model *kinematics.Model, clk clock.Clock) *DriveBase {
	if clk == nil {
		clk = clock.New()
	}
	return &DriveBase{
		left:  left,
		right: right,
		model: model,
		clock: clk,
		last:  clk.Now(),
	}
}

// Drive sets the forward speed in mm/s and turn rate in deg/s (positive
// turns right). On a motor failure both wheels are stopped.
func (b *DriveBase) Drive(speed, steering int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()

	l, r, saturated := b.model.Powers(speed, steering)
	if saturated {
		debug.Verbose("DriveBase: (%d, %d) saturates the motors, scaled to (%.2f, %.2f)", speed, steering, l, r)
	}
	if err := multierr.Combine(b.left.SetPower(l), b.right.SetPower(r)); err != nil {
		b.speed = 0
		return multierr.Combine(err, b.left.Stop(), b.right.Stop())
	}
	b.speed, _ = b.model.Body(b.left.Power(), b.right.Power())
	return nil
}

// DistanceTraveled returns the cumulative distance in mm since New.
func (b *DriveBase) DistanceTraveled() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return int(math.Round(b.distance)), nil
}

// Stop halts both wheels.
func (b *DriveBase) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.speed = 0
	return multierr.Combine(b.left.Stop(), b.right.Stop())
}

// Close stops and disables both motors.
func (b *DriveBase) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	b.speed = 0
	return multierr.Combine(b.left.Disable(), b.right.Disable())
}

func (b *DriveBase) advance() {
	now := b.clock.Now()
	b.distance += b.speed * now.Sub(b.last).Seconds()
	b.last = now
}
