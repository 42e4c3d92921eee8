package utils

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func setupTestLogger(output *bytes.Buffer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	SetLoggerForTest(zerolog.New(output).With().Timestamp().Logger().Level(lvl))
}

func TestInfoLogging(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Info("test message", "foo", 42, "bar", true)

	out := buf.String()
	if !strings.Contains(out, "test message") {
		t.Error("Expected log message not found in output")
	}
	if !strings.Contains(out, `"foo":42`) || !strings.Contains(out, `"bar":true`) {
		t.Error("Expected key-value pairs not found in output")
	}
}

func TestErrorValuesAreStrings(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "info")

	Error("render failed", "error", errors.New("chrome gone"))

	if !strings.Contains(buf.String(), `"error":"chrome gone"`) {
		t.Errorf("expected error text in output, got %s", buf.String())
	}
}

func TestLevelsFilter(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	Info("hidden")
	Debug("hidden too")
	Warn("something odd", "code", 99)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info/debug must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "something odd") || !strings.Contains(out, `"code":99`) {
		t.Error("Warn log output missing expected content")
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "warn")

	SetLogLevel("info")
	Info("should be visible")

	if !strings.Contains(buf.String(), "should be visible") {
		t.Error("Expected info log after SetLogLevel not found")
	}
}

func TestSetLogLevelFallbackAndDanglingKey(t *testing.T) {
	var buf bytes.Buffer
	setupTestLogger(&buf, "error")

	SetLogLevel("invalid-level")
	Info("hello", "k", "v", "dangling")

	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("expected info output after fallback, got %s", buf.String())
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "ogimage.log")
	InitLogger(logFile, 1, 1, 1, false, "")
	Info("hello", "k", "v")
	Warn("warn")
	Error("error")
}
