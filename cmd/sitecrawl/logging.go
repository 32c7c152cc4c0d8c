package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/use-agent/sitecrawl/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// initLogger configures the default slog logger. When cfg.File is set, logs
// are also written to a rotating file.
func initLogger(cfg config.LogConfig, console io.Writer) {
	slog.SetDefault(slog.New(newLogHandler(cfg, console)))
}

func newLogHandler(cfg config.LogConfig, console io.Writer) slog.Handler {
	out := console
	if cfg.File != "" {
		out = io.MultiWriter(console, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     30,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
