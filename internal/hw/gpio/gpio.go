package gpio

import (
	"fmt"

	"github.com/cjeanneret/GyroDrive/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver is the pin-level hardware interface used by the motors.
// A real Raspberry Pi implementation and a logging mock satisfy it.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	// SetPWM drives pin with a square wave of freqHz at duty in [0, 1].
	SetPWM(pin int, freqHz int, duty float64) error
	Close() error
}

// MockDriver logs every call and touches no hardware.
type MockDriver struct{}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	return Low, nil
}

func (m *MockDriver) SetPWM(pin int, freqHz int, duty float64) error {
	if err := checkDuty(freqHz, duty); err != nil {
		return err
	}
	debug.GPIO("SetPWM", pin, fmt.Sprintf("%d Hz %.0f%%", freqHz, duty*100))
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

func checkDuty(freqHz int, duty float64) error {
	if freqHz <= 0 {
		return fmt.Errorf("pwm frequency must be > 0, got %d", freqHz)
	}
	if duty < 0 || duty > 1 {
		return fmt.Errorf("pwm duty must be in [0, 1], got %.3f", duty)
	}
	return nil
}
