// Package logger provides the structured-logging contract used throughout
// the leaderepoch library code.
package logger

import (
	"io"
	"io/ioutil"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract used by this package's components. It is
// intentionally small: callers inject an implementation, components never
// reach for a process-global logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// Silent suppresses all output when silent is true. It exists so callers
	// can default to a logger that is safe to invoke unconditionally without
	// configuring one explicitly.
	Silent(silent bool)
}

// logrusLogger is a Logger backed by logrus.
type logrusLogger struct {
	log *logrus.Logger
}

// NewLogger creates a Logger at the given verbosity. A verbosity of 0 logs
// at info level and above; higher verbosities enable debug output.
func NewLogger(verbosity int) Logger {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	if verbosity > 0 {
		log.SetLevel(logrus.DebugLevel)
	}
	return &logrusLogger{log: log}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

func (l *logrusLogger) Silent(silent bool) {
	if silent {
		l.log.SetOutput(ioutil.Discard)
	} else {
		l.log.SetOutput(defaultOutput)
	}
}

var defaultOutput io.Writer = logrus.StandardLogger().Out
