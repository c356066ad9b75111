package debug

import (
	"bytes"
	"strings"
	"testing"
)

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(LevelLive)
	defer Init(LevelOff)

	Info("info %d", 1)
	Live("live %d", 2)
	Verbose("verbose %d", 3)
	Tick("turn", 1, 10, 0)

	out := buf.String()
	if !strings.Contains(out, "[INFO] info 1") {
		t.Errorf("expected info line, got %q", out)
	}
	if !strings.Contains(out, "[LIVE] live 2") {
		t.Errorf("expected live line, got %q", out)
	}
	if strings.Contains(out, "verbose 3") {
		t.Errorf("verbose line should be filtered at level %d", LevelLive)
	}
	if strings.Contains(out, "[TICK]") {
		t.Errorf("tick line should be filtered at level %d", LevelLive)
	}
}

func TestInit_OffProducesNothing(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(LevelOff)

	Info("hidden")
	Error(nil)
	Summary("hidden")

	if buf.Len() != 0 {
		t.Errorf("expected no output with level off, got %q", buf.String())
	}
	if Fmt("x=%d", 1) != "" {
		t.Error("Fmt should return empty string when disabled")
	}
}

func TestIsEnabled(t *testing.T) {
	Init(LevelVerbose)
	defer Init(LevelOff)

	if !IsEnabled(LevelInfo) || !IsEnabled(LevelVerbose) {
		t.Error("levels up to verbose should be enabled")
	}
	if IsEnabled(LevelTrace) {
		t.Error("trace should not be enabled at verbose")
	}
}

func TestPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(LevelInfo)
	defer Init(LevelOff)

	Value("Tick", "10ms")
	if !strings.Contains(buf.String(), "[GyroDrive] ") {
		t.Errorf("missing prefix in %q", buf.String())
	}
	if !strings.Contains(buf.String(), "Tick = 10ms") {
		t.Errorf("missing value in %q", buf.String())
	}
}
