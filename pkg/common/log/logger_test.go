package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestStandardLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithLevel(LevelDebug))

	testCases := []struct {
		level Level
		logFn func(string, ...interface{})
	}{
		{LevelDebug, logger.Debug},
		{LevelInfo, logger.Info},
		{LevelWarn, logger.Warn},
		{LevelError, logger.Error},
	}

	for _, tc := range testCases {
		tc.logFn("scan of page %d", 2)
		output := buf.String()
		if !strings.Contains(output, "["+tc.level.String()+"]") || !strings.Contains(output, "scan of page 2") {
			t.Errorf("%s logging failed, got: %s", tc.level, output)
		}
		buf.Reset()
	}
}

func TestFieldsAreSorted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf))

	logger.WithFields(map[string]interface{}{
		"page":      1,
		"component": "store",
		"offset":    72,
	}).Info("corrupt record")

	output := buf.String()
	if !strings.Contains(output, "component=store offset=72 page=1 corrupt record") {
		t.Errorf("fields not sorted, got: %s", output)
	}
}

func TestChildSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewStandardLogger(WithOutput(&buf), WithLevel(LevelInfo))
	child := root.WithField("component", "flash")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug message should be filtered, got: %s", buf.String())
	}

	root.SetLevel(LevelDebug)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "component=flash visible") {
		t.Errorf("child should follow root level, got: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithLevel(LevelError))

	logger.Debug("should not appear")
	logger.Info("should not appear")
	logger.Warn("should not appear")
	logger.Error("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") || !strings.Contains(output, "should appear") {
		t.Errorf("Level filtering failed, got: %s", output)
	}
	if logger.GetLevel() != LevelError {
		t.Errorf("GetLevel returned %v", logger.GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	testCases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
	}
	for name, want := range testCases {
		got, err := ParseLevel(name)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, expected %v", name, got, want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDefaultLogger(t *testing.T) {
	originalLogger := defaultLogger
	defer func() {
		defaultLogger = originalLogger
	}()

	var buf bytes.Buffer
	SetDefaultLogger(NewStandardLogger(WithOutput(&buf), WithLevel(LevelInfo)))

	WithField("global", true).Info("Global with field")
	output := buf.String()
	if !strings.Contains(output, "[INFO]") || !strings.Contains(output, "global=true") {
		t.Errorf("Global logging with field failed, got: %s", output)
	}
}

func TestDiscardLogger(t *testing.T) {
	logger := NewDiscardLogger()
	logger.Error("nothing to see")
	if logger.GetLevel() <= LevelFatal {
		t.Errorf("discard logger should filter every level, got %v", logger.GetLevel())
	}
}
