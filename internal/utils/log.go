package utils

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	baseOnce   sync.Once
	baseLogger *logrus.Logger
)

func base() *logrus.Logger {
	baseOnce.Do(func() {
		baseLogger = logrus.New()
		baseLogger.Out = os.Stderr
		if os.Getenv("QUIC_RECOVERY_DEBUG") != "" {
			baseLogger.SetLevel(logrus.DebugLevel)
		} else {
			baseLogger.SetLevel(logrus.InfoLevel)
		}
	})
	return baseLogger
}

// Logger is the logging facade every loss-recovery component takes: a
// structured, per-component logrus.Entry. Fields (level=...,
// component=...) let a single deployment's logs be filtered per
// encryption level.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger builds a Logger scoped to the given component name, e.g.
// "ack-ingest" or "timer".
func NewLogger(component string) Logger {
	return Logger{entry: base().WithField("component", component)}
}

// WithLevel returns a copy of the logger additionally scoped to an
// encryption level.
func (l Logger) WithLevel(level fmt.Stringer) Logger {
	return Logger{entry: l.entry.WithField("level", level.String())}
}

// Debug reports whether debug-level logging is currently enabled, so
// callers can skip expensive formatting.
func (l Logger) Debug() bool {
	return base().IsLevelEnabled(logrus.DebugLevel)
}

// Debugf logs a formatted debug message.
func (l Logger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Infof logs a formatted info message.
func (l Logger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Errorf logs a formatted error message.
func (l Logger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
