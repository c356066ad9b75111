package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml; filepath.Clean resolves this
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
drive_base:
  wheel_diameter_mm: 62.4
  axle_track_mm: 120
  max_wheel_deg_per_s: 900
  pwm_freq_hz: 2000
  min_power: 0.2
  left_motor:
    pwm_pin: 12
    dir_pin: 5
    enable_pin: 6
  right_motor:
    pwm_pin: 13
    dir_pin: 16
    enable_pin: 26
    inverted: true
gyro:
  type: "mpu6050"
  i2c_bus: "1"
  address: 0x69
  sample_rate_hz: 100
  calibration_samples: 50
  max_bias_stddev: 1.5
control:
  tick_ms: 20
  turn_policy: "shortest_path"
  slow_zone_deg: 15
  fast_turn_rate: 60
  slow_turn_rate: 10
  correction_speed: 2
  correction_mode: "blend"
  blend_gain: 2.5
  max_ticks: 5000
  turn_timeout_ms: 15000
  straight_timeout_ms: 30000
  sensor_limit_deg: 7200
  max_turn_deg: 180
  max_speed: 800
  default_speed: 200
defaults:
  debug_level: 2
  mock_gpio: false
  step_pause_ms: 250
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DriveBase.WheelDiameterMm != 62.4 {
		t.Errorf("wheel_diameter_mm = %v, want 62.4", cfg.DriveBase.WheelDiameterMm)
	}
	if !cfg.DriveBase.RightMotor.Inverted || cfg.DriveBase.LeftMotor.Inverted {
		t.Errorf("inverted flags = %v/%v, want false/true", cfg.DriveBase.LeftMotor.Inverted, cfg.DriveBase.RightMotor.Inverted)
	}
	if cfg.Gyro.Address != 0x69 {
		t.Errorf("gyro.address = %#x, want 0x69", cfg.Gyro.Address)
	}
	if cfg.Control.DefaultSpeed != 200 {
		t.Errorf("default_speed = %d, want 200", cfg.Control.DefaultSpeed)
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("debug_level = %d, want 2", cfg.Defaults.DebugLevel)
	}
	if cfg.StepPause() != 250*time.Millisecond {
		t.Errorf("StepPause() = %v, want 250ms", cfg.StepPause())
	}
	if cfg.SamplePeriod() != 10*time.Millisecond {
		t.Errorf("SamplePeriod() = %v, want 10ms", cfg.SamplePeriod())
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "defaults:\n  mock_gpio: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db := cfg.DriveBase
	if db.WheelDiameterMm != 56 || db.AxleTrackMm != 114 || db.MaxWheelDegPerS != 720 {
		t.Errorf("drive_base geometry defaults = %v/%v/%v, want 56/114/720", db.WheelDiameterMm, db.AxleTrackMm, db.MaxWheelDegPerS)
	}
	if db.PWMFreqHz != 1000 || db.MinPower != 0.15 {
		t.Errorf("pwm defaults = %d Hz / %v, want 1000 / 0.15", db.PWMFreqHz, db.MinPower)
	}
	if cfg.Gyro.Type != "mpu6050" || cfg.Gyro.Address != 0x68 || cfg.Gyro.I2CBus != "1" {
		t.Errorf("gyro defaults = %+v", cfg.Gyro)
	}
	ctl := cfg.Control
	if ctl.TickMs != 10 || ctl.TurnPolicy != "threshold" || ctl.CorrectionMode != "hold" {
		t.Errorf("control defaults = %+v", ctl)
	}
	if ctl.SlowZoneDeg != 10 || ctl.FastTurnRate != 45 || ctl.SlowTurnRate != 8 {
		t.Errorf("turn defaults = %d/%d/%d, want 10/45/8", ctl.SlowZoneDeg, ctl.FastTurnRate, ctl.SlowTurnRate)
	}
	if ctl.DefaultSpeed != 150 || ctl.MaxSpeed != 1000 {
		t.Errorf("speed defaults = %d/%d, want 150/1000", ctl.DefaultSpeed, ctl.MaxSpeed)
	}
	if cfg.Defaults.StepPauseMs != 500 {
		t.Errorf("step_pause_ms default = %d, want 500", cfg.Defaults.StepPauseMs)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown policy", "defaults: {mock_gpio: true}\ncontrol: {turn_policy: spiral}\n"},
		{"unknown correction", "defaults: {mock_gpio: true}\ncontrol: {correction_mode: pid}\n"},
		{"unknown gyro", "defaults: {mock_gpio: true}\ngyro: {type: bno055}\n"},
		{"wide address", "defaults: {mock_gpio: true}\ngyro: {address: 0x1ff}\n"},
		{"min power too high", "defaults: {mock_gpio: true}\ndrive_base: {min_power: 1.2}\n"},
		{"rates inverted", "defaults: {mock_gpio: true}\ncontrol: {fast_turn_rate: 5, slow_turn_rate: 8}\n"},
		{"default above max", "defaults: {mock_gpio: true}\ncontrol: {max_speed: 100, default_speed: 200}\n"},
		{"negative ticks", "defaults: {mock_gpio: true}\ncontrol: {max_ticks: -1}\n"},
		{"debug level", "defaults: {mock_gpio: true, debug_level: 9}\n"},
		{"real gpio without pins", "defaults: {mock_gpio: false}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_RejectsInvalidPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	if err := os.WriteFile(path, []byte("defaults: {mock_gpio: true}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for config outside configs/, got nil")
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (motor pins missing on real hardware), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
defaults:
  mock_gpio: true
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_BlendGainFromYAML(t *testing.T) {
	for _, gain := range []float64{0.5, 1.25, 3} {
		path := writeConfig(t, "defaults: {mock_gpio: true}\ncontrol:\n  blend_gain: "+formatFloat(gain)+"\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("gain %v: %v", gain, err)
		}
		if cfg.Control.BlendGain != gain {
			t.Errorf("blend_gain = %v, want %v", cfg.Control.BlendGain, gain)
		}
	}
}

// ---------- Helper methods ----------

func TestConfig_Motion(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	m := cfg.Motion()
	if m.TickInterval != 20*time.Millisecond {
		t.Errorf("TickInterval = %v, want 20ms", m.TickInterval)
	}
	if m.TurnPolicy != "shortest_path" || m.CorrectionMode != "blend" {
		t.Errorf("policy/mode = %q/%q", m.TurnPolicy, m.CorrectionMode)
	}
	if m.SlowZone != 15 || m.FastTurnRate != 60 || m.SlowTurnRate != 10 {
		t.Errorf("turn tuning = %d/%d/%d, want 15/60/10", m.SlowZone, m.FastTurnRate, m.SlowTurnRate)
	}
	if m.TurnTimeout != 15*time.Second || m.StraightTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v, want 15s/30s", m.TurnTimeout, m.StraightTimeout)
	}
	if m.MaxTicks != 5000 || m.SensorLimit != 7200 || m.MaxTurnDeg != 180 || m.MaxSpeed != 800 {
		t.Errorf("bounds = %+v", m)
	}
	if m.BlendGain != 2.5 || m.CorrectionSpeed != 2 {
		t.Errorf("correction = %v/%d, want 2.5/2", m.BlendGain, m.CorrectionSpeed)
	}
}

func TestConfig_TickInterval(t *testing.T) {
	cfg := &Config{Control: ControlConfig{TickMs: 5}}
	if got := cfg.TickInterval(); got != 5*time.Millisecond {
		t.Errorf("TickInterval() = %v, want 5ms", got)
	}
}

// formatFloat is a test helper for embedding floats into YAML strings.
func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
