package obs

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = newLogger("info")
		}
	})
	return logger
}

// SetupLogger configures the shared logger with the given level. Must be called
// before the first Logger() use to take effect.
func SetupLogger(level string) *slog.Logger {
	loggerOnce.Do(func() {
		logger = newLogger(level)
	})
	return logger
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
