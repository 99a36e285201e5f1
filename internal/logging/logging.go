package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// DebugEnv forces debug logging when set to a true value.
const DebugEnv = "TERMBRIDGE_DEBUG"

func ParseLevel(s string) (slog.Level, error) {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (expected debug|info|warn|error)", s)
	}
}

// DebugFromEnv reports whether DebugEnv asks for verbose diagnostics.
func DebugFromEnv() bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(DebugEnv)))
	return err == nil && v
}

// New builds a text logger. verbose or DebugEnv override level with debug.
// An unknown level falls back to info and is reported through the
// returned error so callers can warn and continue.
func New(w io.Writer, level string, verbose bool) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if verbose || DebugFromEnv() {
		lvl, err = slog.LevelDebug, nil
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), err
}
