// Package gyro implements a heading sensor on top of an MPU-6050 6-axis IMU
// over I2C. Only the gyroscope Z axis is used: its rate is integrated in a
// background goroutine into an accumulated, never wrapped heading.
//
// The chip answers on 0x68, or 0x69 when AD0 is wired high.
package gyro

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/stat"
	"periph.io/x/conn/v3/i2c"

	"github.com/cjeanneret/GyroDrive/internal/debug"
)

const (
	regGyroZ     = 71  // GYRO_ZOUT_H, followed by GYRO_ZOUT_L
	regPowerMgmt = 107 // PWR_MGMT_1
	regWhoAmI    = 117
	whoAmI       = 0x68
	sleepBit     = 1 << 6

	// fullScale is the default ±250 deg/s gyro range.
	fullScale = 250.0
)

// ErrMoving is returned by Calibrate when the samples are too noisy to be
// taken on a stationary robot.
var ErrMoving = errors.New("gyro moving during calibration")

// Config tunes the sensor.
type Config struct {
	Address       uint16
	Invert        bool          // chip mounted upside down
	SamplePeriod  time.Duration // integration period, defaults to 5 ms
	MaxBiasStdDev float64       // deg/s, defaults to 2
}

// MPU6050 is a relative heading sensor. Angle increases clockwise seen from
// above.
type MPU6050 struct {
	dev   *i2c.Dev
	cfg   Config
	clock clock.Clock
	sign  float64

	mu      sync.Mutex
	bias    float64 // deg/s, raw chip convention
	heading float64 // degrees, clockwise positive
	last    time.Time
	lastErr error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New checks the device identity on bus and wakes it up. Sampling starts
// with Start. clk may be nil for the wall clock.
func New(bus i2c.Bus, cfg Config, clk clock.Clock) (*MPU6050, error) {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.SamplePeriod <= 0 {
		cfg.SamplePeriod = 5 * time.Millisecond
	}
	if cfg.MaxBiasStdDev <= 0 {
		cfg.MaxBiasStdDev = 2
	}
	// The chip's Z axis points up, so its positive rate is counterclockwise.
	sign := -1.0
	if cfg.Invert {
		sign = 1
	}
	g := &MPU6050{
		dev:   &i2c.Dev{Bus: bus, Addr: cfg.Address},
		cfg:   cfg,
		clock: clk,
		sign:  sign,
		last:  clk.Now(),
	}

	id, err := g.readByte(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("read WHO_AM_I at %#x on %s: %w", cfg.Address, bus, err)
	}
	if id != whoAmI {
		return nil, fmt.Errorf("unexpected non-MPU6050 device at %#x: WHO_AM_I=%#x", cfg.Address, id)
	}
	// The chip starts asleep; clearing PWR_MGMT_1 selects measurement mode.
	if err := g.writeByte(regPowerMgmt, 0); err != nil {
		return nil, fmt.Errorf("wake MPU6050: %w", err)
	}
	debug.Verbose("MPU6050 ready at %#x on %s", cfg.Address, bus)
	return g, nil
}

// Calibrate averages n stationary samples into the gyro bias. It returns
// ErrMoving, leaving the previous bias, when the standard deviation exceeds
// MaxBiasStdDev.
func (g *MPU6050) Calibrate(ctx context.Context, n int) (mean, stddev float64, err error) {
	if n < 2 {
		return 0, 0, fmt.Errorf("calibration needs at least 2 samples, got %d", n)
	}
	samples := make([]float64, 0, n)
	for len(samples) < n {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		r, err := g.rawRate()
		if err != nil {
			return 0, 0, fmt.Errorf("calibration sample %d: %w", len(samples), err)
		}
		samples = append(samples, r)
	}

	mean, stddev = stat.MeanStdDev(samples, nil)
	debug.Verbose("MPU6050 bias %.3f deg/s, stddev %.3f over %d samples", mean, stddev, n)
	if stddev > g.cfg.MaxBiasStdDev {
		return mean, stddev, fmt.Errorf("%w: stddev %.2f deg/s > %.2f", ErrMoving, stddev, g.cfg.MaxBiasStdDev)
	}

	g.mu.Lock()
	g.bias = mean
	g.mu.Unlock()
	return mean, stddev, nil
}

// Start launches the sampling goroutine. It runs until ctx is done or
// Close is called.
func (g *MPU6050) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Lock()
	g.last = g.clock.Now()
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := g.clock.Ticker(g.cfg.SamplePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.sample()
			}
		}
	}()
}

// sample reads one rate and integrates it since the previous sample.
func (g *MPU6050) sample() {
	raw, err := g.rawRate()
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.lastErr = err
		return
	}
	g.lastErr = nil
	dt := now.Sub(g.last).Seconds()
	g.last = now
	g.heading += g.sign * (raw - g.bias) * dt
}

// Angle returns the accumulated heading in whole degrees. It fails while
// the most recent sample could not be read.
func (g *MPU6050) Angle() (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastErr != nil {
		return 0, g.lastErr
	}
	return int(math.Round(g.heading)), nil
}

// ResetAngle rebases the accumulated heading to angle.
func (g *MPU6050) ResetAngle(angle int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heading = float64(angle)
	return nil
}

// Rate returns the bias corrected turn rate in deg/s, clockwise positive.
func (g *MPU6050) Rate() (float64, error) {
	raw, err := g.rawRate()
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sign * (raw - g.bias), nil
}

// Close stops sampling and puts the chip back to sleep.
func (g *MPU6050) Close() error {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
	return g.writeByte(regPowerMgmt, sleepBit)
}

func (g *MPU6050) rawRate() (float64, error) {
	var b [2]byte
	debug.I2C("read", g.cfg.Address, regGyroZ)
	if err := g.dev.Tx([]byte{regGyroZ}, b[:]); err != nil {
		return 0, err
	}
	v := int16(uint16(b[0])<<8 | uint16(b[1]))
	return float64(v) * fullScale / (1 << 15), nil
}

func (g *MPU6050) readByte(register byte) (byte, error) {
	var b [1]byte
	debug.I2C("read", g.cfg.Address, register)
	if err := g.dev.Tx([]byte{register}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (g *MPU6050) writeByte(register, value byte) error {
	debug.I2C("write", g.cfg.Address, register)
	return g.dev.Tx([]byte{register, value}, nil)
}
