package observability

import (
	"testing"

	"go.uber.org/zap"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zap.AtomicLevel
	}{
		{"DEBUG", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"debug", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"WARN", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"ERROR", zap.NewAtomicLevelAt(zap.ErrorLevel)},
		{"INFO", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"  error  ", zap.NewAtomicLevelAt(zap.ErrorLevel)},
		{"garbage", zap.NewAtomicLevelAt(zap.InfoLevel)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got.Level() != tt.want.Level() {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got.Level(), tt.want.Level())
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
	logger.Info("logger smoke test")
	_ = logger.Sync()
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("LOG_LEVEL", "DEBUG")
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Error("logger should log at DEBUG when LOG_LEVEL=DEBUG")
	}
}
