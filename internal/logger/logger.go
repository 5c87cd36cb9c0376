package logger

import (
	"io"
	"log/slog"
	"os"

	"teacher-dashboard-api/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) {
	Logger = New(os.Stdout, cfg.GinMode)

	if cfg.GinMode == "debug" {
		Logger.Debug("Structured logging initialized", "level", slog.LevelDebug.String())
	} else {
		Logger.Info("Structured logging initialized", "level", slog.LevelInfo.String())
	}
}

// New builds a JSON logger; debug mode lowers the level and adds source positions.
func New(w io.Writer, ginMode string) *slog.Logger {
	level := slog.LevelInfo
	if ginMode == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: ginMode == "debug",
	}))
}

// With returns a child logger carrying the given attributes.
// Before InitLogger it falls back to slog's default logger.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		return slog.Default().With(args...)
	}
	return Logger.With(args...)
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
