package debug

import (
	"fmt"
	"log/slog"
	"time"
)

// DebugHeader marks the start of a traced call if debugging is enabled
func DebugHeader(enabled bool) {
	if enabled {
		slog.Info("=== DEBUG START ===")
	}
}

// DebugFooter marks the end of a traced call if debugging is enabled
func DebugFooter(enabled bool) {
	if enabled {
		slog.Info("=== DEBUG END ===")
	}
}

// DebugOutput logs a formatted trace line if debugging is enabled
func DebugOutput(enabled bool, format string, args ...interface{}) {
	if enabled {
		slog.Info(fmt.Sprintf(format, args...), slog.Bool("trace", true))
	}
}

// DebugTiming measures and logs execution time if debugging is enabled
func DebugTiming(enabled bool, operation string) func() {
	if !enabled {
		return func() {}
	}

	start := time.Now()
	DebugOutput(enabled, "Starting: %s", operation)

	return func() {
		DebugOutput(enabled, "Completed: %s (took %v)", operation, time.Since(start))
	}
}
