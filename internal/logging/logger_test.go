package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestNew_TeesIntoWriter(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	var buf bytes.Buffer
	log, err := New("info", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Debug("hidden")
	log.Info("Logging failing sysfs file", zap.String("file", "/sys/class/hwmon/hwmon0/pwm1"))
	_ = log.Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "pwm1") {
		t.Fatalf("tee output=%q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("tee output contains color codes: %q", out)
	}
}

func TestNew_EnvOverridesLevel(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "error")
	var buf bytes.Buffer
	log, err := New("debug", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("quiet")
	_ = log.Sync()
	if buf.Len() != 0 {
		t.Fatalf("expected no output below error, got %q", buf.String())
	}
}
