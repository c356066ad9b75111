package motion

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/cjeanneret/GyroDrive/internal/debug"
)

// Controller runs heading-controlled moves on a drive base.
// It is an intermediate layer between callers (CLI, web, scripted
// sequences) and the hardware. It does not lock: one caller at a time.
type Controller struct {
	act    Actuator
	sensor HeadingSensor
	cfg    Config
	clock  clock.Clock
	rec    Recorder
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock used for ticks and timeouts.
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) { ctrl.clock = c }
}

// WithRecorder streams every control tick to r.
func WithRecorder(r Recorder) Option {
	return func(ctrl *Controller) { ctrl.rec = r }
}

// NewController creates a controller. cfg zero fields take their defaults.
func NewController(act Actuator, sensor HeadingSensor, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		act:    act,
		sensor: sensor,
		cfg:    cfg.withDefaults(),
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration, defaults applied.
func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) drive(speed, steering int) error {
	if err := c.act.Drive(speed, steering); err != nil {
		return fmt.Errorf("%w: drive(%d, %d): %w", ErrActuatorFault, speed, steering, err)
	}
	return nil
}

func (c *Controller) stop() error {
	return c.drive(0, 0)
}

// fail stops the base before surfacing err.
func (c *Controller) fail(err error) error {
	debug.Error(err)
	return multierr.Combine(err, c.stop())
}

// angle reads the sensor, retrying once on a failed or out-of-range read.
func (c *Controller) angle() (int, error) {
	a, err := c.readAngle()
	if err == nil {
		return a, nil
	}
	debug.Trace("heading read failed, retrying: %v", err)
	a, err = c.readAngle()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSensorUnavailable, err)
	}
	return a, nil
}

func (c *Controller) readAngle() (int, error) {
	a, err := c.sensor.Angle()
	if err != nil {
		return 0, err
	}
	if a > c.cfg.SensorLimit || a < -c.cfg.SensorLimit {
		return 0, fmt.Errorf("reading %d outside ±%d", a, c.cfg.SensorLimit)
	}
	return a, nil
}

func (c *Controller) resetAngle() error {
	if err := c.sensor.ResetAngle(0); err != nil {
		return fmt.Errorf("%w: reset: %w", ErrSensorUnavailable, err)
	}
	return nil
}

func (c *Controller) distance() (int, error) {
	d, err := c.act.DistanceTraveled()
	if err != nil {
		return 0, fmt.Errorf("%w: distance: %w", ErrActuatorFault, err)
	}
	return d, nil
}

func (c *Controller) record(s Sample) {
	if c.rec == nil {
		return
	}
	if err := c.rec.Record(s); err != nil {
		debug.Error(fmt.Errorf("record sample: %w", err))
	}
}

// loop paces one motion call. Ticks and the deadline span every phase of
// the call.
type loop struct {
	op       string
	clock    clock.Clock
	ctx      context.Context
	ticker   *clock.Ticker
	start    time.Time
	timeout  time.Duration
	maxTicks int
	ticks    int
}

func (c *Controller) newLoop(ctx context.Context, op string, timeout time.Duration) *loop {
	return &loop{
		op:       op,
		clock:    c.clock,
		ctx:      ctx,
		ticker:   c.clock.Ticker(c.cfg.TickInterval),
		start:    c.clock.Now(),
		timeout:  timeout,
		maxTicks: c.cfg.MaxTicks,
	}
}

// wait blocks until the next tick. It fails on cancellation or when the
// tick or time budget is spent.
func (l *loop) wait() error {
	if err := l.ctx.Err(); err != nil {
		return err
	}
	if l.maxTicks > 0 && l.ticks >= l.maxTicks {
		return fmt.Errorf("%w: %s gave up after %d ticks", ErrTimeoutExceeded, l.op, l.ticks)
	}
	select {
	case <-l.ctx.Done():
		return l.ctx.Err()
	case <-l.ticker.C:
	}
	l.ticks++
	if elapsed := l.clock.Since(l.start); elapsed > l.timeout {
		return fmt.Errorf("%w: %s gave up after %v", ErrTimeoutExceeded, l.op, elapsed)
	}
	return nil
}

func (l *loop) elapsed() time.Duration {
	return l.clock.Since(l.start)
}

func (l *loop) close() {
	l.ticker.Stop()
}
