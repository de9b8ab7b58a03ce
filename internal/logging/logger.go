// Package logging provides structured logging for the sync agent.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	global *logrus.Logger
	once   sync.Once
)

// Init initializes the global logger. Level is one of debug, info, warn,
// error; anything else falls back to info.
func Init(out io.Writer, level string) {
	once.Do(func() {
		global = logrus.New()
		global.SetOutput(out)
		global.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
		})

		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			parsed = logrus.InfoLevel
		}
		global.SetLevel(parsed)
	})
}

// Get returns the global logger instance.
func Get() *logrus.Logger {
	if global == nil {
		Init(os.Stdout, "info")
	}
	return global
}

// Fields is a shorthand for structured log fields.
type Fields = logrus.Fields

// Debug logs a debug message with optional fields.
func Debug(message string, fields Fields) {
	Get().WithFields(fields).Debug(message)
}

// Info logs an info message with optional fields.
func Info(message string, fields Fields) {
	Get().WithFields(fields).Info(message)
}

// Warn logs a warning message with optional fields.
func Warn(message string, fields Fields) {
	Get().WithFields(fields).Warn(message)
}

// Error logs an error message with optional fields.
func Error(message string, err error, fields Fields) {
	entry := Get().WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}

// ErrorWithCode logs an error message tagged with an application error code.
func ErrorWithCode(message string, code string, err error, fields Fields) {
	entry := Get().WithFields(fields).WithField("error_code", code)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
