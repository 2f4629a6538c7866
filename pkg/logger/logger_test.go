package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		env   string
		want  zapcore.Level
	}{
		{"debug", "development", zapcore.DebugLevel},
		{"WARN", "production", zapcore.WarnLevel},
		{"bogus", "production", zapcore.InfoLevel},
		{"", "development", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.env, func(t *testing.T) {
			l, err := New(tt.level, tt.env)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if !l.Core().Enabled(tt.want) {
				t.Errorf("level %v should be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && l.Core().Enabled(tt.want-1) {
				t.Errorf("level %v should be disabled", tt.want-1)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("abc"); got != "abc" {
		t.Errorf("Redact(abc) = %q", got)
	}
	if got := Redact("openid-1234567890"); got != "openid…" {
		t.Errorf("Redact(long) = %q", got)
	}
}
