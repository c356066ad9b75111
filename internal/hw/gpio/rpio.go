package gpio

import (
	"fmt"
	"math"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/GyroDrive/internal/debug"
)

// pwmCycle is the PWM period in clock ticks; duty resolution is 1/pwmCycle.
const pwmCycle = 1024

// pwmPins are the BCM pins routed to the PWM0/PWM1 channels on a 40-pin header.
var pwmPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins    map[int]rpio.Pin
	pwm     map[int]int // pin -> configured frequency
	started bool
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
// Hardware PWM needs /dev/mem, so run as root when motors are wired.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
		pwm:  make(map[int]int),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)
	r.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as input
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

// SetPWM switches pin to its hardware PWM function on first use. The clock
// is reprogrammed only when the frequency changes.
func (r *RPiDriver) SetPWM(pin int, freqHz int, duty float64) error {
	if err := checkDuty(freqHz, duty); err != nil {
		return err
	}
	if !pwmPins[pin] {
		return fmt.Errorf("pin %d has no hardware PWM channel", pin)
	}
	debug.GPIO("SetPWM", pin, fmt.Sprintf("%d Hz %.0f%%", freqHz, duty*100))

	p := rpio.Pin(pin)
	if f, ok := r.pwm[pin]; !ok || f != freqHz {
		p.Pwm()
		p.Freq(freqHz * pwmCycle)
		r.pins[pin] = p
		r.pwm[pin] = freqHz
	}
	if !r.started {
		rpio.StartPwm()
		r.started = true
	}
	p.DutyCycle(uint32(math.Round(duty*pwmCycle)), pwmCycle)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	for pin := range r.pwm {
		rpio.Pin(pin).DutyCycle(0, pwmCycle)
	}
	if r.started {
		rpio.StopPwm()
	}

	// Reset all pins to input (safe state)
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
