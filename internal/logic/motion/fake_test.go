package motion

import "time"

// command records one Drive call with the sensor state at that moment.
type command struct {
	speed    int
	steering int
	heading  int
	atRead   int // number of Angle reads since reset when the command was issued
}

// fakeBase is a per-read simulation: every Angle read advances the heading
// by steering/8 (at least one degree while steering), every distance read
// advances the odometer by speed/20.
type fakeBase struct {
	heading  int
	dist     int
	speed    int
	steering int
	reads    int

	stalled     bool // steering has no effect on heading
	distStalled bool // speed has no effect on distance

	injectAt int // Angle read number that adds inject degrees of drift
	inject   int

	angleErrs []error // queued Angle results, nil entries pass through
	readings  []int   // queued Angle values overriding the simulation
	driveErr  error   // returned for any non-stop command
	distErr   error
	resetErr  error

	commands []command
	resets   int
}

func (f *fakeBase) Drive(speed, steering int) error {
	if f.driveErr != nil && (speed != 0 || steering != 0) {
		return f.driveErr
	}
	f.speed, f.steering = speed, steering
	f.commands = append(f.commands, command{speed: speed, steering: steering, heading: f.heading, atRead: f.reads})
	return nil
}

func (f *fakeBase) DistanceTraveled() (int, error) {
	if f.distErr != nil {
		return 0, f.distErr
	}
	if !f.distStalled {
		f.dist += f.speed / 20
	}
	return f.dist, nil
}

func (f *fakeBase) Angle() (int, error) {
	f.reads++
	if len(f.angleErrs) > 0 {
		err := f.angleErrs[0]
		f.angleErrs = f.angleErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(f.readings) > 0 {
		v := f.readings[0]
		f.readings = f.readings[1:]
		return v, nil
	}
	if !f.stalled {
		f.heading += step(f.steering)
	}
	if f.injectAt > 0 && f.reads == f.injectAt {
		f.heading += f.inject
	}
	return f.heading, nil
}

func (f *fakeBase) ResetAngle(angle int) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	f.heading = angle
	f.reads = 0
	return nil
}

func (f *fakeBase) last() command {
	if len(f.commands) == 0 {
		return command{speed: -1, steering: -1}
	}
	return f.commands[len(f.commands)-1]
}

func step(steering int) int {
	s := steering / 8
	switch {
	case s == 0 && steering > 0:
		return 1
	case s == 0 && steering < 0:
		return -1
	}
	return s
}

// sliceRecorder keeps every sample.
type sliceRecorder struct {
	samples []Sample
}

func (r *sliceRecorder) Record(s Sample) error {
	r.samples = append(r.samples, s)
	return nil
}

// cancelAfter cancels a context once it has seen n samples.
type cancelAfter struct {
	n      int
	seen   int
	cancel func()
}

func (r *cancelAfter) Record(Sample) error {
	r.seen++
	if r.seen == r.n {
		r.cancel()
	}
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Microsecond
	cfg.MaxTicks = 10000
	return cfg
}

func newTestController(f *fakeBase, cfg Config, opts ...Option) *Controller {
	return NewController(f, f, cfg, opts...)
}
