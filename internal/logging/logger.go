package logging

import (
	"log/slog"
	"os"
)

var level = new(slog.LevelVar) // dynamic level if we ever want to adjust it

func newHandler() slog.Handler {
	if os.Getenv("LOG_LEVEL") == "debug" {
		level.Set(slog.LevelDebug)
	}
	if os.Getenv("LOG_FORMAT") == "text" {
		return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}

var Logger = slog.New(newHandler())

// Shortcut helpers
var (
	Info  = Logger.Info
	Error = Logger.Error
	Warn  = Logger.Warn
	Debug = Logger.Debug
)

// Fatal logs at error level and exits; only startup code should call it.
func Fatal(msg string, args ...any) {
	Logger.Error(msg, args...)
	os.Exit(1)
}
