package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_Defaults(t *testing.T) {
	l := NewLogger(nil)
	if l.level != LevelInfo {
		t.Errorf("default level = %v, want LevelInfo", l.level)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("this should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "this should appear") {
		t.Errorf("expected warn message, got %q", out)
	}
}

func TestLogger_FormatArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Info("dispatched", "msg_id", 10, "cid", 1024)

	out := buf.String()
	if !strings.Contains(out, "msg_id=10") || !strings.Contains(out, "cid=1024") {
		t.Errorf("expected key=value pairs in output, got %q", out)
	}
}

func TestDefault_Singleton(t *testing.T) {
	first := Default()
	second := Default()
	if first != second {
		t.Error("Default() should return the same logger instance")
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(NewLogger(nil))

	Info("via package function")
	if !strings.Contains(buf.String(), "via package function") {
		t.Error("expected package-level Info to use the custom default logger")
	}
}
