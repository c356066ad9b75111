package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/cjeanneret/GyroDrive/internal/config"
	"github.com/cjeanneret/GyroDrive/internal/debug"
	"github.com/cjeanneret/GyroDrive/internal/hw/drivebase"
	"github.com/cjeanneret/GyroDrive/internal/hw/gpio"
	"github.com/cjeanneret/GyroDrive/internal/hw/gyro"
	"github.com/cjeanneret/GyroDrive/internal/hw/motor"
	"github.com/cjeanneret/GyroDrive/internal/hw/sim"
	"github.com/cjeanneret/GyroDrive/internal/logic/kinematics"
	"github.com/cjeanneret/GyroDrive/internal/logic/motion"
	"github.com/cjeanneret/GyroDrive/internal/logic/sequence"
	"github.com/cjeanneret/GyroDrive/internal/telemetry"
	"github.com/cjeanneret/GyroDrive/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	turn := &optionalInt{}
	flag.Var(turn, "turn", "turn to heading in degrees, positive is clockwise (-360..360)")
	straight := flag.Int("straight", 0, "drive straight for this many mm (after -turn, if given)")
	speed := flag.Int("speed", 0, "straight speed in mm/s; 0 = config default_speed")
	stepsFlag := flag.String("steps", "", `move sequence, e.g. "turn:90,straight:500@200,turn:-90"`)
	tracePath := flag.String("trace", "", "write one CSV row per control tick to this file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	steps, err := buildSteps(turn, *straight, *speed, *stepsFlag, cfg.Control.DefaultSpeed)
	if err != nil {
		log.Fatalf("invalid move: %v", err)
	}
	if len(steps) == 0 && webPort.port() == 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: give -turn, -straight, -steps or -web")
		flag.Usage()
		os.Exit(2)
	}

	hw, err := newHardware(ctx, cfg)
	if err != nil {
		log.Fatalf("init hardware failed: %v", err)
	}
	defer func() {
		if err := hw.close(); err != nil {
			log.Printf("closing hardware failed: %v", err)
		}
	}()

	var opts []motion.Option
	trace, err := telemetry.CreateCSV(*tracePath)
	if err != nil {
		log.Fatalf("open trace failed: %v", err)
	}
	if trace != nil {
		defer func() {
			debug.Info("Trace: %d rows written to %s", trace.Rows(), *tracePath)
			if err := trace.Close(); err != nil {
				log.Printf("closing trace failed: %v", err)
			}
		}()
		opts = append(opts, motion.WithRecorder(trace))
	}

	debug.PrintStruct("Control config", cfg.Control)
	ctrl := motion.NewController(hw.actuator, hw.sensor, cfg.Motion(), opts...)
	runner := sequence.NewRunner(ctrl, nil)

	runSteps := func(ctx context.Context, steps []sequence.Step) ([]motion.Result, error) {
		results, err := runner.Run(ctx, steps, cfg.StepPause())
		printResults(steps, results)
		return results, err
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		formDefaults := web.FormConfig{
			DefaultSpeed:   cfg.Control.DefaultSpeed,
			MaxSpeed:       cfg.Control.MaxSpeed,
			MaxTurnDeg:     cfg.Control.MaxTurnDeg,
			TickMs:         cfg.Control.TickMs,
			TurnPolicy:     cfg.Control.TurnPolicy,
			CorrectionMode: cfg.Control.CorrectionMode,
		}
		srv := web.NewServer(webAddr, broadcaster, runSteps, formDefaults)
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
		return
	}

	if _, err := runSteps(ctx, steps); err != nil {
		log.Printf("sequence failed: %v", err)
		if errors.Is(err, context.Canceled) {
			return
		}
		os.Exit(1)
	}
}

// hardware is the actuator and heading sensor pair the controller drives.
type hardware struct {
	actuator motion.Actuator
	sensor   motion.HeadingSensor
	closers  []func() error
}

// close releases resources in reverse order of acquisition.
func (h *hardware) close() error {
	var err error
	for i := len(h.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, h.closers[i]())
	}
	return err
}

// newHardware builds the simulator (mock_gpio) or the real motors and gyro.
func newHardware(ctx context.Context, cfg *config.Config) (*hardware, error) {
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	if cfg.Defaults.MockGPIO {
		debug.Step(1, "Using simulated drive base")
		base := sim.New(nil)
		return &hardware{actuator: base, sensor: base}, nil
	}

	hw := &hardware{}
	fail := func(err error) (*hardware, error) {
		return nil, multierr.Append(err, hw.close())
	}

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(false)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	hw.closers = append(hw.closers, gpioDriver.Close)

	debug.Step(2, "Initializing motors")
	db := cfg.DriveBase
	left, err := motor.NewMotor(gpioDriver, motorConfig(db, db.LeftMotor))
	if err != nil {
		return fail(fmt.Errorf("init left motor: %w", err))
	}
	debug.PrintStruct("Left motor config", db.LeftMotor)
	right, err := motor.NewMotor(gpioDriver, motorConfig(db, db.RightMotor))
	if err != nil {
		return fail(fmt.Errorf("init right motor: %w", err))
	}
	debug.PrintStruct("Right motor config", db.RightMotor)

	base := drivebase.New(left, right, kinematics.NewModel(cfg), nil)
	hw.closers = append(hw.closers, base.Close)
	hw.actuator = base

	debug.Step(3, "Initializing heading sensor")
	debug.Value("Gyro type", cfg.Gyro.Type)
	switch cfg.Gyro.Type {
	case "sim":
		// Dead reckoning: the simulator follows the commands sent to the motors.
		s := sim.New(nil)
		hw.actuator = mirror{primary: base, shadow: s}
		hw.sensor = s
	default:
		g, err := openGyro(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		hw.closers = append(hw.closers, g.close)
		hw.sensor = g.MPU6050
	}
	return hw, nil
}

func motorConfig(db config.DriveBaseConfig, m config.MotorConfig) motor.Config {
	return motor.Config{
		PWMPin:    m.PWMPin,
		DirPin:    m.DirPin,
		EnablePin: m.EnablePin,
		FreqHz:    db.PWMFreqHz,
		MinPower:  db.MinPower,
		Inverted:  m.Inverted,
	}
}

// openedGyro ties the sensor to the bus it was opened on.
type openedGyro struct {
	*gyro.MPU6050
	bus io.Closer
}

func (g openedGyro) close() error {
	return multierr.Combine(g.MPU6050.Close(), g.bus.Close())
}

// openGyro opens the I2C bus, calibrates the bias and starts sampling.
func openGyro(ctx context.Context, cfg *config.Config) (openedGyro, error) {
	if _, err := host.Init(); err != nil {
		return openedGyro{}, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(cfg.Gyro.I2CBus)
	if err != nil {
		return openedGyro{}, fmt.Errorf("open I2C bus %q: %w", cfg.Gyro.I2CBus, err)
	}
	g, err := gyro.New(bus, gyro.Config{
		Address:       cfg.Gyro.Address,
		Invert:        cfg.Gyro.Invert,
		SamplePeriod:  cfg.SamplePeriod(),
		MaxBiasStdDev: cfg.Gyro.MaxBiasStdDev,
	}, nil)
	if err != nil {
		return openedGyro{}, multierr.Append(err, bus.Close())
	}
	opened := openedGyro{MPU6050: g, bus: bus}

	debug.Info("Calibrating gyro, keep the robot still")
	mean, stddev, err := g.Calibrate(ctx, cfg.Gyro.CalibrationSamples)
	if err != nil {
		return openedGyro{}, multierr.Append(fmt.Errorf("calibrate gyro: %w", err), opened.close())
	}
	debug.Info("Gyro bias %.3f deg/s (stddev %.3f)", mean, stddev)
	g.Start(ctx)
	return opened, nil
}

// mirror forwards every command to a shadow actuator so a simulated sensor
// can follow the real base.
type mirror struct {
	primary motion.Actuator
	shadow  motion.Actuator
}

func (m mirror) Drive(speed, steering int) error {
	if err := m.primary.Drive(speed, steering); err != nil {
		return multierr.Append(err, m.shadow.Drive(0, 0))
	}
	return m.shadow.Drive(speed, steering)
}

func (m mirror) DistanceTraveled() (int, error) {
	return m.primary.DistanceTraveled()
}

// buildSteps turns the move flags into a sequence. -steps wins over
// -turn/-straight; an empty result means no move was requested.
func buildSteps(turn *optionalInt, straight, speed int, steps string, defaultSpeed int) ([]sequence.Step, error) {
	if steps != "" {
		if turn.set || straight != 0 {
			return nil, errors.New("-steps cannot be combined with -turn or -straight")
		}
		return sequence.Parse(steps, defaultSpeed)
	}

	var out []sequence.Step
	if turn.set {
		out = append(out, sequence.Step{Kind: sequence.KindTurn, Heading: turn.val})
	}
	if straight < 0 {
		return nil, fmt.Errorf("-straight must be > 0, got %d", straight)
	}
	if straight > 0 {
		if speed == 0 {
			speed = defaultSpeed
		}
		if speed < 0 {
			return nil, fmt.Errorf("-speed must be > 0, got %d", speed)
		}
		out = append(out, sequence.Step{Kind: sequence.KindStraight, Distance: straight, Speed: speed})
	} else if speed != 0 {
		return nil, errors.New("-speed needs -straight")
	}
	return out, nil
}

func printResults(steps []sequence.Step, results []motion.Result) {
	debug.Summary("Results")
	for i, res := range results {
		switch steps[i].Kind {
		case sequence.KindTurn:
			debug.Info("%d. %-18s heading %d (%s), %d ticks, %v",
				i+1, steps[i], res.Heading, res.Direction, res.Ticks, res.Elapsed)
		default:
			debug.Info("%d. %-18s %d mm, drift %d, %d corrections, %v",
				i+1, steps[i], res.Distance, res.Heading, res.Corrections, res.Elapsed)
		}
	}
}

// optionalInt is an int flag that remembers whether it was given, so that
// -turn 0 is a real request.
type optionalInt struct {
	val int
	set bool
}

func (o *optionalInt) String() string {
	if !o.set {
		return ""
	}
	return strconv.Itoa(o.val)
}

func (o *optionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.val, o.set = v, true
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
