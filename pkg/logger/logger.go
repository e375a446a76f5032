package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	AGENTS       = "AGENTS"
	CONFIG       = "CONFIG"
	MIDDLEWARE   = "MIDDLEWARE"
	ORCHESTRATOR = "ORCHESTRATOR"
	QUEUE        = "QUEUE"
	RELAY        = "RELAY"
	SERVICE      = "SERVICE"
	WORKER       = "WORKER"
)

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init configures the global zerolog logger. format "console" writes
// human-readable lines to stderr, anything else writes JSON.
func Init(level, format string) {
	var out io.Writer = os.Stderr
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	SetOutput(out, ParseLevel(level))
}

// SetOutput replaces the global logger. Tests use it to capture output.
func SetOutput(w io.Writer, level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// For returns a child logger tagged with the namespace.
func For(namespace string) zerolog.Logger {
	return log.With().Str("namespace", namespace).Logger()
}

func emit(ev *zerolog.Event, namespace, format string, v ...interface{}) {
	if ev == nil {
		return
	}
	ev.Str("namespace", namespace).Msg(fmt.Sprintf(format, v...))
}

func Debug(namespace, format string, v ...interface{}) {
	emit(log.Debug(), namespace, format, v...)
}

func Info(namespace, format string, v ...interface{}) {
	emit(log.Info(), namespace, format, v...)
}

func Warn(namespace, format string, v ...interface{}) {
	emit(log.Warn(), namespace, format, v...)
}

func Error(namespace, format string, v ...interface{}) {
	emit(log.Error(), namespace, format, v...)
}
