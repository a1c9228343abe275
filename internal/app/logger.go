package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide structured logger. Production
// deployments emit JSON; everything else gets the text handler.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if !cfg.IsProduction() {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
