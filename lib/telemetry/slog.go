package telemetry

import (
	"log/slog"
	"os"
)

// InitSlog installs the process-wide slog handler. Debug mode is meant
// for development and tests; production deployments stay at info.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}
