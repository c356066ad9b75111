package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/GyroDrive/internal/logic/motion"
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 * 1024

// MotorConfig wires one DC motor behind an H-bridge.
type MotorConfig struct {
	PWMPin    int  `yaml:"pwm_pin"`    // hardware PWM capable pin (BCM 12, 13, 18 or 19)
	DirPin    int  `yaml:"dir_pin"`    // direction input of the bridge
	EnablePin int  `yaml:"enable_pin"` // 0 = not used. Active HIGH.
	Inverted  bool `yaml:"inverted"`   // mirrored mounting
}

// DriveBaseConfig describes the differential base geometry and motors.
type DriveBaseConfig struct {
	WheelDiameterMm float64     `yaml:"wheel_diameter_mm"`
	AxleTrackMm     float64     `yaml:"axle_track_mm"`       // distance between the wheel contact points
	MaxWheelDegPerS float64     `yaml:"max_wheel_deg_per_s"` // wheel rate at full power
	PWMFreqHz       int         `yaml:"pwm_freq_hz"`
	MinPower        float64     `yaml:"min_power"` // smallest power that still turns the wheels
	LeftMotor       MotorConfig `yaml:"left_motor"`
	RightMotor      MotorConfig `yaml:"right_motor"`
}

// GyroConfig selects and tunes the heading sensor.
type GyroConfig struct {
	Type               string  `yaml:"type"`    // "mpu6050" or "sim"
	I2CBus             string  `yaml:"i2c_bus"` // periph bus name, "1" on a Raspberry Pi
	Address            uint16  `yaml:"address"`
	Invert             bool    `yaml:"invert"` // chip mounted upside down
	SampleRateHz       int     `yaml:"sample_rate_hz"`
	CalibrationSamples int     `yaml:"calibration_samples"`
	MaxBiasStdDev      float64 `yaml:"max_bias_stddev"` // deg/s; above this the robot is assumed to be moving
}

// ControlConfig tunes the heading controller.
type ControlConfig struct {
	TickMs            int     `yaml:"tick_ms"`
	TurnPolicy        string  `yaml:"turn_policy"` // "threshold" or "shortest_path"
	SlowZoneDeg       int     `yaml:"slow_zone_deg"`
	FastTurnRate      int     `yaml:"fast_turn_rate"` // deg/s
	SlowTurnRate      int     `yaml:"slow_turn_rate"` // deg/s
	CorrectionSpeed   int     `yaml:"correction_speed"`
	CorrectionMode    string  `yaml:"correction_mode"` // "hold" or "blend"
	BlendGain         float64 `yaml:"blend_gain"`
	MaxTicks          int     `yaml:"max_ticks"`           // 0 = unbounded
	TurnTimeoutMs     int     `yaml:"turn_timeout_ms"`     // 0 = derived from the turn size
	StraightTimeoutMs int     `yaml:"straight_timeout_ms"` // 0 = derived from distance and speed
	SensorLimitDeg    int     `yaml:"sensor_limit_deg"`
	MaxTurnDeg        int     `yaml:"max_turn_deg"`
	MaxSpeed          int     `yaml:"max_speed"`     // mm/s
	DefaultSpeed      int     `yaml:"default_speed"` // mm/s, used when a straight step has no @speed
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	DebugLevel  int  `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool `yaml:"mock_gpio"`     // simulated base instead of real motors and gyro
	StepPauseMs int  `yaml:"step_pause_ms"` // pause between sequence steps
}

// Config aggregates all application configuration.
type Config struct {
	DriveBase DriveBaseConfig `yaml:"drive_base"`
	Gyro      GyroConfig      `yaml:"gyro"`
	Control   ControlConfig   `yaml:"control"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files that sit directly in a
// configs/ directory, and rejects any ".." element.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension, got %q", path, ext)
	}
	if parent := filepath.Base(filepath.Dir(clean)); parent != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	db := &c.DriveBase
	if db.WheelDiameterMm <= 0 {
		db.WheelDiameterMm = 56
	}
	if db.AxleTrackMm <= 0 {
		db.AxleTrackMm = 114
	}
	if db.MaxWheelDegPerS <= 0 {
		db.MaxWheelDegPerS = 720
	}
	if db.PWMFreqHz <= 0 {
		db.PWMFreqHz = 1000
	}
	if db.MinPower == 0 {
		db.MinPower = 0.15
	}

	g := &c.Gyro
	if g.Type == "" {
		g.Type = "mpu6050"
	}
	if g.I2CBus == "" {
		g.I2CBus = "1"
	}
	if g.Address == 0 {
		g.Address = 0x68
	}
	if g.SampleRateHz <= 0 {
		g.SampleRateHz = 200
	}
	if g.CalibrationSamples <= 0 {
		g.CalibrationSamples = 200
	}
	if g.MaxBiasStdDev <= 0 {
		g.MaxBiasStdDev = 2.0
	}

	ctl := &c.Control
	d := motion.DefaultConfig()
	if ctl.TickMs <= 0 {
		ctl.TickMs = int(d.TickInterval / time.Millisecond)
	}
	if ctl.TurnPolicy == "" {
		ctl.TurnPolicy = string(d.TurnPolicy)
	}
	if ctl.SlowZoneDeg <= 0 {
		ctl.SlowZoneDeg = d.SlowZone
	}
	if ctl.FastTurnRate <= 0 {
		ctl.FastTurnRate = d.FastTurnRate
	}
	if ctl.SlowTurnRate <= 0 {
		ctl.SlowTurnRate = d.SlowTurnRate
	}
	if ctl.CorrectionSpeed <= 0 {
		ctl.CorrectionSpeed = d.CorrectionSpeed
	}
	if ctl.CorrectionMode == "" {
		ctl.CorrectionMode = string(d.CorrectionMode)
	}
	if ctl.BlendGain <= 0 {
		ctl.BlendGain = d.BlendGain
	}
	if ctl.SensorLimitDeg <= 0 {
		ctl.SensorLimitDeg = d.SensorLimit
	}
	if ctl.MaxTurnDeg <= 0 {
		ctl.MaxTurnDeg = d.MaxTurnDeg
	}
	if ctl.MaxSpeed <= 0 {
		ctl.MaxSpeed = d.MaxSpeed
	}
	if ctl.DefaultSpeed <= 0 {
		ctl.DefaultSpeed = 150
	}

	if c.Defaults.StepPauseMs <= 0 {
		c.Defaults.StepPauseMs = 500
	}
}

// Validate checks ranges and cross-field constraints. Load calls it after
// filling defaults.
func (c *Config) Validate() error {
	db := c.DriveBase
	if db.MinPower < 0 || db.MinPower >= 1 {
		return fmt.Errorf("drive_base.min_power must be in [0, 1), got %.2f", db.MinPower)
	}
	if !c.Defaults.MockGPIO {
		if db.LeftMotor.PWMPin <= 0 || db.RightMotor.PWMPin <= 0 {
			return errors.New("drive_base.left_motor.pwm_pin and right_motor.pwm_pin are required when mock_gpio is false")
		}
		if db.LeftMotor.DirPin <= 0 || db.RightMotor.DirPin <= 0 {
			return errors.New("drive_base.left_motor.dir_pin and right_motor.dir_pin are required when mock_gpio is false")
		}
	}

	switch c.Gyro.Type {
	case "mpu6050", "sim":
	default:
		return fmt.Errorf("gyro.type must be mpu6050 or sim, got %q", c.Gyro.Type)
	}
	if c.Gyro.Address > 0x7f {
		return fmt.Errorf("gyro.address must be a 7-bit I2C address, got %#x", c.Gyro.Address)
	}

	ctl := c.Control
	switch motion.TurnPolicy(ctl.TurnPolicy) {
	case motion.PolicyThreshold, motion.PolicyShortestPath:
	default:
		return fmt.Errorf("control.turn_policy must be threshold or shortest_path, got %q", ctl.TurnPolicy)
	}
	switch motion.CorrectionMode(ctl.CorrectionMode) {
	case motion.CorrectionHold, motion.CorrectionBlend:
	default:
		return fmt.Errorf("control.correction_mode must be hold or blend, got %q", ctl.CorrectionMode)
	}
	if ctl.FastTurnRate < ctl.SlowTurnRate {
		return fmt.Errorf("control.fast_turn_rate (%d) must be >= slow_turn_rate (%d)", ctl.FastTurnRate, ctl.SlowTurnRate)
	}
	if ctl.MaxTicks < 0 || ctl.TurnTimeoutMs < 0 || ctl.StraightTimeoutMs < 0 {
		return errors.New("control.max_ticks and timeouts must be >= 0")
	}
	if ctl.DefaultSpeed > ctl.MaxSpeed {
		return fmt.Errorf("control.default_speed (%d) must be <= max_speed (%d)", ctl.DefaultSpeed, ctl.MaxSpeed)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Motion returns the controller tuning described by the control section.
func (c *Config) Motion() motion.Config {
	ctl := c.Control
	return motion.Config{
		TickInterval:    c.TickInterval(),
		TurnPolicy:      motion.TurnPolicy(ctl.TurnPolicy),
		SlowZone:        ctl.SlowZoneDeg,
		FastTurnRate:    ctl.FastTurnRate,
		SlowTurnRate:    ctl.SlowTurnRate,
		CorrectionSpeed: ctl.CorrectionSpeed,
		CorrectionMode:  motion.CorrectionMode(ctl.CorrectionMode),
		BlendGain:       ctl.BlendGain,
		MaxTicks:        ctl.MaxTicks,
		TurnTimeout:     time.Duration(ctl.TurnTimeoutMs) * time.Millisecond,
		StraightTimeout: time.Duration(ctl.StraightTimeoutMs) * time.Millisecond,
		SensorLimit:     ctl.SensorLimitDeg,
		MaxTurnDeg:      ctl.MaxTurnDeg,
		MaxSpeed:        ctl.MaxSpeed,
	}
}

// TickInterval returns the control loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Control.TickMs) * time.Millisecond
}

// StepPause returns the pause between two sequence steps.
func (c *Config) StepPause() time.Duration {
	return time.Duration(c.Defaults.StepPauseMs) * time.Millisecond
}

// SamplePeriod returns the gyro sampling period.
func (c *Config) SamplePeriod() time.Duration {
	return time.Second / time.Duration(c.Gyro.SampleRateHz)
}
