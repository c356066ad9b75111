package motion

import (
	"math"
	"time"
)

// TurnPolicy selects how Turn interprets its target.
type TurnPolicy string

const (
	// PolicyThreshold treats the target as a signed relative turn and
	// splits it into coarse and fine phases around SlowZone.
	PolicyThreshold TurnPolicy = "threshold"
	// PolicyShortestPath folds the target onto the compass ring and turns
	// along the shorter arc.
	PolicyShortestPath TurnPolicy = "shortest_path"
)

// CorrectionMode selects how Straight cancels heading drift.
type CorrectionMode string

const (
	// CorrectionHold slows to CorrectionSpeed and steers back until drift is zero.
	CorrectionHold CorrectionMode = "hold"
	// CorrectionBlend keeps full speed and adds a proportional steering bias.
	CorrectionBlend CorrectionMode = "blend"
)

const minTimeout = 10 * time.Second

// Config tunes the controller. Zero fields take the DefaultConfig value.
type Config struct {
	TickInterval    time.Duration
	TurnPolicy      TurnPolicy
	SlowZone        int // degrees before the target where the fine phase starts
	FastTurnRate    int // deg/s
	SlowTurnRate    int // deg/s
	CorrectionSpeed int // mm/s while holding a heading correction
	CorrectionMode  CorrectionMode
	BlendGain       float64
	MaxTicks        int           // per call, 0 = unbounded
	TurnTimeout     time.Duration // 0 = derived from the turn size
	StraightTimeout time.Duration // 0 = derived from distance and speed
	SensorLimit     int           // readings beyond ±SensorLimit are treated as failures
	MaxTurnDeg      int
	MaxSpeed        int
}

// DefaultConfig returns the tuning used on the reference robot.
func DefaultConfig() Config {
	return Config{
		TickInterval:    10 * time.Millisecond,
		TurnPolicy:      PolicyThreshold,
		SlowZone:        10,
		FastTurnRate:    45,
		SlowTurnRate:    8,
		CorrectionSpeed: 1,
		CorrectionMode:  CorrectionHold,
		BlendGain:       1,
		SensorLimit:     36000,
		MaxTurnDeg:      360,
		MaxSpeed:        1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.TurnPolicy == "" {
		c.TurnPolicy = d.TurnPolicy
	}
	if c.SlowZone <= 0 {
		c.SlowZone = d.SlowZone
	}
	if c.FastTurnRate <= 0 {
		c.FastTurnRate = d.FastTurnRate
	}
	if c.SlowTurnRate <= 0 {
		c.SlowTurnRate = d.SlowTurnRate
	}
	if c.CorrectionSpeed <= 0 {
		c.CorrectionSpeed = d.CorrectionSpeed
	}
	if c.CorrectionMode == "" {
		c.CorrectionMode = d.CorrectionMode
	}
	if c.BlendGain <= 0 {
		c.BlendGain = d.BlendGain
	}
	if c.SensorLimit <= 0 {
		c.SensorLimit = d.SensorLimit
	}
	if c.MaxTurnDeg <= 0 {
		c.MaxTurnDeg = d.MaxTurnDeg
	}
	if c.MaxSpeed <= 0 {
		c.MaxSpeed = d.MaxSpeed
	}
	return c
}

// turnTimeout is five times the time a slow-rate turn of that size would
// take, never less than minTimeout.
func (c Config) turnTimeout(degrees int) time.Duration {
	if c.TurnTimeout > 0 {
		return c.TurnTimeout
	}
	est := time.Duration(math.Abs(float64(degrees)) / float64(c.SlowTurnRate) * float64(time.Second))
	return maxDuration(5*est, minTimeout)
}

// straightTimeout is five times the nominal drive time, never less than
// minTimeout.
func (c Config) straightTimeout(distance, speed int) time.Duration {
	if c.StraightTimeout > 0 {
		return c.StraightTimeout
	}
	est := time.Duration(float64(distance) / float64(speed) * float64(time.Second))
	return maxDuration(5*est, minTimeout)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
