package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger creates a structured logger appropriate for the environment,
// writing to stdout. Production uses JSON format, development uses
// colorized human-readable text at debug level.
func NewLogger(env string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env)
}

// NewLoggerTo is NewLogger with an explicit destination. The MCP stdio
// mode logs to stderr because stdout carries the protocol stream.
func NewLoggerTo(w io.Writer, env string) *slog.Logger {
	if env == "production" {
		handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})

		return slog.New(handler)
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    noColor,
	})

	return slog.New(handler)
}
