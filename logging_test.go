package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
		ok       bool
	}{
		{"DEBUG", zapcore.DebugLevel, true},
		{"info", zapcore.InfoLevel, true},
		{"Warning", zapcore.WarnLevel, true},
		{"ERROR", zapcore.ErrorLevel, true},
		{"critical", zapcore.DPanicLevel, true},
		{" INFO ", zapcore.InfoLevel, true},
		{"WARN", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		level, ok := parseLogLevel(tt.input)
		if ok != tt.ok || (ok && level != tt.expected) {
			t.Errorf("parseLogLevel(%q) = %v, %v, expected %v, %v", tt.input, level, ok, tt.expected, tt.ok)
		}
	}
}

func TestLevelName(t *testing.T) {
	for name, level := range logLevels {
		if got := levelName(level); got != name {
			t.Errorf("levelName(%v) = %q, expected %q", level, got, name)
		}
	}
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.log")
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)

	logger, closeLog := newLogger(path, level)
	logger.Debug("first debug line")
	level.SetLevel(zapcore.WarnLevel)
	logger.Info("filtered info line")
	logger.Warn("some warning")
	closeLog()

	// a second run appends
	logger, closeLog = newLogger(path, zap.NewAtomicLevelAt(zapcore.DebugLevel))
	logger.Error("second run")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	for _, want := range []string{"DEBUG", "first debug line", "WARNING", "some warning", "emlscan", "second run"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "filtered info line") {
		t.Errorf("info line written after level change:\n%s", out)
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Errorf("log has %d lines, expected 3:\n%s", lines, out)
	}
}

func TestLogSinkKeepsEveryBackup(t *testing.T) {
	sink := newLogSink(filepath.Join(t.TempDir(), "main.log"))
	if sink.MaxBackups != 0 || sink.MaxAge != 0 || sink.Compress {
		t.Errorf("log backups would be pruned: MaxBackups=%d MaxAge=%d Compress=%v",
			sink.MaxBackups, sink.MaxAge, sink.Compress)
	}
	if sink.MaxSize != logMaxSizeMB {
		t.Errorf("MaxSize = %d, expected %d", sink.MaxSize, logMaxSizeMB)
	}
}
