package motor

import (
	"math"

	"go.uber.org/multierr"

	"github.com/cjeanneret/GyroDrive/internal/debug"
	"github.com/cjeanneret/GyroDrive/internal/hw/gpio"
)

// offThreshold is the power below which the motor is stopped outright.
const offThreshold = 0.001

// Config holds the hardware configuration for a DC motor behind an H-bridge.
type Config struct {
	PWMPin    int
	DirPin    int
	EnablePin int     // bridge enable (BCM). 0 = not used. Active HIGH.
	FreqHz    int     // PWM frequency, defaults to 1 kHz
	MinPower  float64 // duty floor while moving, in [0, 1)
	Inverted  bool    // swap forward and backward for a mirrored motor
}

// Motor drives one wheel with a signed power.
type Motor struct {
	gpio  gpio.Driver
	cfg   Config
	power float64
}

// NewMotor configures the pins, leaves the motor stopped and enables the bridge.
func NewMotor(g gpio.Driver, cfg Config) (*Motor, error) {
	if cfg.FreqHz <= 0 {
		cfg.FreqHz = 1000
	}
	m := &Motor{gpio: g, cfg: cfg}

	err := multierr.Combine(
		g.SetupPin(cfg.DirPin, gpio.Output),
		g.SetPWM(cfg.PWMPin, cfg.FreqHz, 0),
	)
	if cfg.EnablePin > 0 {
		err = multierr.Combine(err,
			g.SetupPin(cfg.EnablePin, gpio.Output),
			g.WritePin(cfg.EnablePin, gpio.High),
		)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetPower drives the motor at power in [-1, 1]; the sign selects the
// direction. Values are clamped, and any non-zero power is raised to
// MinPower so the wheel does not stall.
func (m *Motor) SetPower(power float64) error {
	power = math.Max(-1, math.Min(1, power))
	if math.Abs(power) <= offThreshold {
		return m.Stop()
	}

	forward := power > 0
	if m.cfg.Inverted {
		forward = !forward
	}
	dir := gpio.Low
	if forward {
		dir = gpio.High
	}
	duty := math.Max(math.Abs(power), m.cfg.MinPower)

	debug.Trace("Motor pwm=%d power=%.3f duty=%.3f forward=%v", m.cfg.PWMPin, power, duty, forward)
	if err := multierr.Combine(
		m.gpio.WritePin(m.cfg.DirPin, dir),
		m.gpio.SetPWM(m.cfg.PWMPin, m.cfg.FreqHz, duty),
	); err != nil {
		return err
	}
	m.power = math.Copysign(duty, power)
	return nil
}

// Power returns the signed duty actually applied, MinPower floor included.
// It is 0 when stopped.
func (m *Motor) Power() float64 {
	return m.power
}

// Stop sets the duty to zero. The bridge stays enabled, so the motor brakes
// or coasts depending on the driver chip.
func (m *Motor) Stop() error {
	m.power = 0
	return m.gpio.SetPWM(m.cfg.PWMPin, m.cfg.FreqHz, 0)
}

// Enable turns on the bridge (ENABLE=HIGH).
func (m *Motor) Enable() error {
	if m.cfg.EnablePin <= 0 {
		return nil
	}
	return m.gpio.WritePin(m.cfg.EnablePin, gpio.High)
}

// Disable stops the motor and turns off the bridge (ENABLE=LOW). The wheel
// freewheels.
func (m *Motor) Disable() error {
	err := m.Stop()
	if m.cfg.EnablePin <= 0 {
		return err
	}
	return multierr.Combine(err, m.gpio.WritePin(m.cfg.EnablePin, gpio.Low))
}
