package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cjeanneret/GyroDrive/internal/debug"
	"github.com/cjeanneret/GyroDrive/internal/logic/motion"
)

// MaxSteps bounds the length of a parsed sequence.
const MaxSteps = 64

// ErrInvalidStep is returned by Parse for malformed input.
var ErrInvalidStep = errors.New("invalid step")

// Kind is the move type of a step.
type Kind string

const (
	KindTurn     Kind = "turn"
	KindStraight Kind = "straight"
)

// Step is one single-segment move.
type Step struct {
	Kind     Kind
	Heading  int // turn target, degrees
	Distance int // straight run, mm
	Speed    int // straight run, mm/s
}

func (s Step) String() string {
	if s.Kind == KindTurn {
		return fmt.Sprintf("turn:%d", s.Heading)
	}
	return fmt.Sprintf("straight:%d@%d", s.Distance, s.Speed)
}

// Parse reads a comma separated list such as "turn:90,straight:500@200".
// A straight step without "@speed" runs at defaultSpeed.
func Parse(s string, defaultSpeed int) ([]Step, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty sequence", ErrInvalidStep)
	}
	parts := strings.Split(s, ",")
	if len(parts) > MaxSteps {
		return nil, fmt.Errorf("%w: %d steps, at most %d allowed", ErrInvalidStep, len(parts), MaxSteps)
	}

	steps := make([]Step, 0, len(parts))
	for i, part := range parts {
		step, err := parseStep(strings.TrimSpace(part), defaultSpeed)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(s string, defaultSpeed int) (Step, error) {
	kind, arg, ok := strings.Cut(s, ":")
	if !ok {
		return Step{}, fmt.Errorf("%w: %q, want kind:value", ErrInvalidStep, s)
	}
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindTurn:
		h, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return Step{}, fmt.Errorf("%w: turn heading %q", ErrInvalidStep, arg)
		}
		return Step{Kind: KindTurn, Heading: h}, nil

	case KindStraight:
		dist, speed, hasSpeed := strings.Cut(arg, "@")
		d, err := strconv.Atoi(strings.TrimSpace(dist))
		if err != nil || d <= 0 {
			return Step{}, fmt.Errorf("%w: straight distance %q must be a positive integer", ErrInvalidStep, dist)
		}
		v := defaultSpeed
		if hasSpeed {
			v, err = strconv.Atoi(strings.TrimSpace(speed))
			if err != nil {
				return Step{}, fmt.Errorf("%w: straight speed %q", ErrInvalidStep, speed)
			}
		}
		if v <= 0 {
			return Step{}, fmt.Errorf("%w: straight speed must be > 0, got %d", ErrInvalidStep, v)
		}
		return Step{Kind: KindStraight, Distance: d, Speed: v}, nil
	}
	return Step{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidStep, kind)
}

// Format is the inverse of Parse.
func Format(steps []Step) string {
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Mover executes single moves. *motion.Controller satisfies it.
type Mover interface {
	Turn(ctx context.Context, heading int) (motion.Result, error)
	Straight(ctx context.Context, distance, speed int) (motion.Result, error)
}

// Runner executes step lists on a Mover.
type Runner struct {
	mover Mover
	clock clock.Clock
}

// NewRunner creates a runner. clk may be nil for the wall clock.
func NewRunner(m Mover, clk clock.Clock) *Runner {
	if clk == nil {
		clk = clock.New()
	}
	return &Runner{mover: m, clock: clk}
}

// Run executes steps in order, waiting pause between two steps. It stops at
// the first failure or when ctx is done, and returns the results of every
// step attempted, the failing one included.
func (r *Runner) Run(ctx context.Context, steps []Step, pause time.Duration) ([]motion.Result, error) {
	debug.Section("Sequence")
	debug.Info("Running %d steps: %s", len(steps), Format(steps))

	results := make([]motion.Result, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if i > 0 && pause > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-r.clock.After(pause):
			}
		}

		debug.Step(i+1, step.String())
		var (
			res motion.Result
			err error
		)
		switch step.Kind {
		case KindTurn:
			res, err = r.mover.Turn(ctx, step.Heading)
		case KindStraight:
			res, err = r.mover.Straight(ctx, step.Distance, step.Speed)
		default:
			err = fmt.Errorf("%w: unknown kind %q", ErrInvalidStep, step.Kind)
		}
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}
	}

	debug.Info("Sequence complete")
	return results, nil
}
