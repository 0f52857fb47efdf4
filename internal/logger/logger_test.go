package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("prod", "")
	if err != nil {
		t.Fatalf("NewLogger(prod): %v", err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Errorf("prod default must not enable debug")
	}

	l, err = NewLogger("local", "warn")
	if err != nil {
		t.Fatalf("NewLogger(local, warn): %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Errorf("warn override still enables info")
	}

	if _, err := NewLogger("staging", ""); err == nil {
		t.Errorf("unknown environment accepted")
	}
	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Errorf("unparsable level accepted")
	}
}

func TestContextCarriage(t *testing.T) {
	base := zap.NewNop()
	if FromContext(ContextWithLogger(context.Background(), base)) != base {
		t.Errorf("context lost the logger")
	}
	if FromContext(context.Background()) == nil {
		t.Errorf("missing logger must fall back to a nop")
	}
}
