package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTLDAlternation(t *testing.T) {
	tests := []struct {
		name     string
		list     string
		expected string
	}{
		{"Trailing newline", "com\norg\n", "com|org"},
		{"No trailing newline", "com\norg", "com|org"},
		{"Only one newline stripped", "com\norg\n\n", "com|org|"},
		{"CRLF line endings", "com\r\norg\r\n", "com|org"},
		{"Single token", "com", "com"},
		{"Tokens copied verbatim", "co.uk\nc+m\n", "co.uk|c+m"},
		{"Empty file", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tldAlternation(tt.list); got != tt.expected {
				t.Errorf("tldAlternation(%q) = %q, expected %q", tt.list, got, tt.expected)
			}
		})
	}
}

func TestLoadTLDAlternationFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TLD.conf")
	if err := os.WriteFile(path, []byte("com\nnet\nio\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := loadTLDAlternation(path, zap.NewNop()); got != "com|net|io" {
		t.Errorf("loadTLDAlternation() = %q", got)
	}
}

func TestLoadTLDAlternationFallback(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	got := loadTLDAlternation(filepath.Join(t.TempDir(), "missing.conf"), logger)
	if got != "com|org|net|int|edu|gov|mil|arpa" {
		t.Errorf("loadTLDAlternation() = %q, expected default list", got)
	}
	if logs.FilterMessageSnippet("No TLD config found").Len() != 1 {
		t.Errorf("expected one fallback log entry, got %v", logs.All())
	}
}
