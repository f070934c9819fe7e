// Package logging wraps zerolog behind the component+fields calling
// convention used throughout the gateway: Info/Warn/Error/DebugCF(component,
// message, fields).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

// SetLevel parses one of debug|info|warn|error (case-insensitive) and sets
// the global level; unknown values default to info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// SetOutput redirects the logger's writer, for example to capture output.
func SetOutput(w io.Writer) {
	base = zerolog.New(w).With().Timestamp().Logger()
}

func event(e *zerolog.Event, component, message string, fields map[string]interface{}) {
	e = e.Str("component", component)
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(message)
}

func InfoCF(component, message string, fields map[string]interface{}) {
	event(base.Info(), component, message, fields)
}

func WarnCF(component, message string, fields map[string]interface{}) {
	event(base.Warn(), component, message, fields)
}

func ErrorCF(component, message string, fields map[string]interface{}) {
	event(base.Error(), component, message, fields)
}

func DebugCF(component, message string, fields map[string]interface{}) {
	event(base.Debug(), component, message, fields)
}

// Info/Warn/Error/Debug are the fieldless shorthands used for simple
// startup/shutdown lines.
func Info(message string)  { base.Info().Msg(message) }
func Warn(message string)  { base.Warn().Msg(message) }
func Error(message string) { base.Error().Msg(message) }
func Debug(message string) { base.Debug().Msg(message) }
