package motion

import (
	"context"
	"fmt"
	"math"

	"github.com/cjeanneret/GyroDrive/internal/debug"
)

// Straight resets the sensor zero and drives forward distance mm at speed
// mm/s, steering against any heading drift. It returns once the distance is
// covered, with the base stopped.
func (c *Controller) Straight(ctx context.Context, distance, speed int) (Result, error) {
	if distance <= 0 {
		return Result{}, fmt.Errorf("%w: distance must be > 0, got %d", ErrInvalidTarget, distance)
	}
	if speed <= 0 || speed > c.cfg.MaxSpeed {
		return Result{}, fmt.Errorf("%w: speed must be in 1..%d, got %d", ErrInvalidTarget, c.cfg.MaxSpeed, speed)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := c.resetAngle(); err != nil {
		return Result{}, c.fail(err)
	}
	origin, err := c.distance()
	if err != nil {
		return Result{}, c.fail(err)
	}

	debug.Move("Straight", distance, fmt.Sprintf("%d mm/s, %s correction", speed, c.cfg.CorrectionMode))
	l := c.newLoop(ctx, "straight", c.cfg.straightTimeout(distance, speed))
	defer l.close()

	res := Result{}
	cmdSpeed, cmdSteering := speed, 0
	if err := c.drive(cmdSpeed, cmdSteering); err != nil {
		return res, c.fail(err)
	}

	for {
		d, err := c.distance()
		if err != nil {
			return c.abort(l, res, err)
		}
		res.Distance = d - origin
		if res.Distance >= distance {
			break
		}

		drift, err := c.angle()
		if err != nil {
			return c.abort(l, res, err)
		}
		res.Heading = drift

		nextSpeed, nextSteering := c.correction(speed, drift)
		if nextSpeed != cmdSpeed || nextSteering != cmdSteering {
			if cmdSteering == 0 && nextSteering != 0 {
				res.Corrections++
			}
			debug.Correction(drift, nextSteering)
			if err := c.drive(nextSpeed, nextSteering); err != nil {
				return c.abort(l, res, err)
			}
			cmdSpeed, cmdSteering = nextSpeed, nextSteering
		}

		debug.Tick("straight", l.ticks, drift, res.Distance)
		c.record(Sample{
			Op:       "straight",
			Phase:    phaseName(cmdSteering),
			Tick:     l.ticks,
			Heading:  drift,
			Speed:    cmdSpeed,
			Steering: cmdSteering,
			Distance: res.Distance,
		})

		if err := l.wait(); err != nil {
			return c.abort(l, res, err)
		}
	}

	res.Ticks, res.Elapsed = l.ticks, l.elapsed()
	if err := c.stop(); err != nil {
		return res, c.fail(err)
	}
	debug.Live("Straight done: %d/%d mm, %d corrections, %d ticks", res.Distance, distance, res.Corrections, res.Ticks)
	return res, nil
}

// correction returns the drive command for the current drift.
func (c *Controller) correction(speed, drift int) (int, int) {
	if c.cfg.CorrectionMode == CorrectionBlend {
		return speed, int(math.Round(-c.cfg.BlendGain * float64(drift)))
	}
	if drift != 0 {
		return c.cfg.CorrectionSpeed, -drift
	}
	return speed, 0
}

func (c *Controller) abort(l *loop, res Result, err error) (Result, error) {
	res.Ticks, res.Elapsed = l.ticks, l.elapsed()
	return res, c.fail(err)
}

func phaseName(steering int) string {
	if steering != 0 {
		return "correct"
	}
	return "cruise"
}
