package logging

import "testing"

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typed *fileLogger
	var logger Logger = typed
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world") // should not panic
}

func TestNopDiscardsOutput(t *testing.T) {
	logger := Nop()
	logger.Debug("a")
	logger.Info("b")
	logger.Warn("c")
	logger.Error("d")
}

func TestLevelToString(t *testing.T) {
	cases := map[LogLevel]string{
		DEBUG:        "DEBUG",
		INFO:         "INFO",
		WARN:         "WARN",
		ERROR:        "ERROR",
		LogLevel(42): "UNKNOWN",
	}
	for level, want := range cases {
		if got := levelToString(level); got != want {
			t.Fatalf("levelToString(%d) = %q, want %q", level, got, want)
		}
	}
}
