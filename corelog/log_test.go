package corelog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFilteringSuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)
	l.SetColor(false)

	l.Debug("should not appear")
	l.Info("also should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below the configured level, got %q", buf.String())
	}

	l.Warn("visible warning")
	if !strings.Contains(buf.String(), "visible warning") {
		t.Fatalf("expected warning to be logged, got %q", buf.String())
	}
}

func TestLogLineIncludesLevelAndKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)
	l.SetColor(false)

	l.Info("heap grew", "bytes", 4096)
	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Fatalf("expected level tag INFO, got %q", out)
	}
	if !strings.Contains(out, "heap grew") {
		t.Fatalf("expected message text, got %q", out)
	}
	if !strings.Contains(out, "bytes=4096") {
		t.Fatalf("expected key=value pair, got %q", out)
	}
}

func TestSetLevelAdjustsThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelError)
	l.SetColor(false)
	l.Warn("not yet visible")
	if buf.Len() != 0 {
		t.Fatalf("expected suppression at LevelError, got %q", buf.String())
	}
	l.SetLevel(LevelWarn)
	l.Warn("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatal("expected warning to be logged after lowering the threshold")
	}
}

func TestLevelStringsAreStable(t *testing.T) {
	cases := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", int(level), got, want)
		}
	}
}

func TestPackageLevelFunctionsUseDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	prior := std
	defer SetDefault(prior)

	l := New(&buf, LevelDebug)
	l.SetColor(false)
	SetDefault(l)

	Info("via package-level helper")
	if !strings.Contains(buf.String(), "via package-level helper") {
		t.Fatalf("expected package-level Info to route through the default logger, got %q", buf.String())
	}
}
