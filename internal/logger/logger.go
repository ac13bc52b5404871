package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Logger struct {
	l zerolog.Logger
}

func New(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return &Logger{l: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

func Default() *Logger {
	return New(os.Stderr, "info")
}

// Nop discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{l: zerolog.Nop()}
}

func (l *Logger) With(key, value string) *Logger {
	return &Logger{l: l.l.With().Str(key, value).Logger()}
}

func (l *Logger) LogErrorf(format string, v ...any) {
	l.l.Error().Msgf(format, v...)
}

func (l *Logger) LogWarnf(format string, v ...any) {
	l.l.Warn().Msgf(format, v...)
}

func (l *Logger) LogInfo(format string, v ...any) {
	l.l.Info().Msgf(format, v...)
}

func (l *Logger) LogDebugf(format string, v ...any) {
	l.l.Debug().Msgf(format, v...)
}
