package motion

import (
	"context"
	"fmt"

	"github.com/cjeanneret/GyroDrive/internal/debug"
	"github.com/cjeanneret/GyroDrive/internal/logic/heading"
)

// Phase is one closed-loop segment of a turn: spin at Rate until the
// reading crosses Target.
type Phase struct {
	Name   string
	Target int
	Rate   int // signed steering, deg/s
}

func (p Phase) reached(reading int) bool {
	if p.Rate > 0 {
		return reading >= p.Target
	}
	return reading <= p.Target
}

// TurnPlan is the direction and phase list chosen for a relative target.
type TurnPlan struct {
	Target    int
	Direction heading.Direction
	Phases    []Phase
}

// PlanTurn chooses the phases for a relative turn of target degrees.
// Beyond ±SlowZone the turn is a fast coarse phase that stops SlowZone
// short, then a slow fine phase. Inside it only the fine phase runs.
// A zero target plans nothing.
func PlanTurn(target int, cfg Config) TurnPlan {
	cfg = cfg.withDefaults()
	dir := heading.Of(target)
	plan := TurnPlan{Target: target, Direction: dir}
	if dir == heading.None {
		return plan
	}
	sign := dir.Sign()
	if target*sign > cfg.SlowZone {
		plan.Phases = append(plan.Phases, Phase{
			Name:   "coarse",
			Target: target - sign*cfg.SlowZone,
			Rate:   sign * cfg.FastTurnRate,
		})
	}
	plan.Phases = append(plan.Phases, Phase{
		Name:   "fine",
		Target: target,
		Rate:   sign * cfg.SlowTurnRate,
	})
	return plan
}

// relativeTarget maps the caller's heading to a signed turn from the
// freshly reset zero, according to the turn policy.
func (c *Controller) relativeTarget(desired int) int {
	if c.cfg.TurnPolicy == PolicyShortestPath {
		return heading.Relative(heading.FromRaw(desired), 0)
	}
	return desired
}

// Turn resets the sensor zero and turns to desired degrees relative to the
// current orientation. It blocks until the target is crossed, ctx is done
// or the loop budget runs out. The returned Result holds the final reading.
func (c *Controller) Turn(ctx context.Context, desired int) (Result, error) {
	if desired > c.cfg.MaxTurnDeg || desired < -c.cfg.MaxTurnDeg {
		return Result{}, fmt.Errorf("%w: heading %d outside ±%d", ErrInvalidTarget, desired, c.cfg.MaxTurnDeg)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := c.resetAngle(); err != nil {
		return Result{}, c.fail(err)
	}

	plan := PlanTurn(c.relativeTarget(desired), c.cfg)
	res := Result{Direction: plan.Direction}
	debug.Move("Turn", desired, plan.String())

	if len(plan.Phases) == 0 {
		a, err := c.angle()
		if err != nil {
			return res, c.fail(err)
		}
		res.Heading = a
		return res, nil
	}

	l := c.newLoop(ctx, "turn", c.cfg.turnTimeout(plan.Target))
	defer l.close()

	for _, ph := range plan.Phases {
		if err := c.runPhase(l, ph, &res); err != nil {
			res.Ticks, res.Elapsed = l.ticks, l.elapsed()
			return res, c.fail(err)
		}
	}

	a, err := c.angle()
	res.Ticks, res.Elapsed = l.ticks, l.elapsed()
	if err != nil {
		return res, c.fail(err)
	}
	res.Heading = a
	debug.Live("Turn done: wanted %d, reached %d in %d ticks", plan.Target, a, res.Ticks)
	return res, nil
}

func (c *Controller) runPhase(l *loop, ph Phase, res *Result) error {
	debug.Phase(ph.Name, ph.Target, ph.Rate)
	if err := c.drive(0, ph.Rate); err != nil {
		return err
	}
	for {
		a, err := c.angle()
		if err != nil {
			return err
		}
		res.Heading = a
		debug.Tick("turn", l.ticks, a, 0)
		c.record(Sample{Op: "turn", Phase: ph.Name, Tick: l.ticks, Heading: a, Steering: ph.Rate})
		if ph.reached(a) {
			break
		}
		if err := l.wait(); err != nil {
			return err
		}
	}
	return c.stop()
}

func (p TurnPlan) String() string {
	if len(p.Phases) == 0 {
		return "no-op"
	}
	s := p.Direction.String()
	for _, ph := range p.Phases {
		s += fmt.Sprintf(" %s→%d@%d", ph.Name, ph.Target, ph.Rate)
	}
	return s
}
