package leads

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// debug is the package-wide tracer used by d(). It is quiet until New is called with
// Config.Debugger set.
var debug atomic.Pointer[logger]

func init() {
	debug.Store(&logger{})
}

func d(s string, args ...interface{}) {
	debug.Load().debug(s, args...)
}

type logger struct {
	entry           logrus.FieldLogger
	debuggerEnabled bool
}

func newLogger(base logrus.FieldLogger, serviceName string, enabled bool) *logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &logger{
		entry:           base.WithField("service", serviceName),
		debuggerEnabled: enabled,
	}
}

func (l *logger) debug(s string, args ...interface{}) {
	if l.debuggerEnabled && l.entry != nil {
		l.entry.Debugf(s, args...)
	}
}

func (l *logger) WithField(key string, value interface{}) logrus.FieldLogger {
	return l.entry.WithField(key, value)
}

func (l *logger) WithFields(fields logrus.Fields) logrus.FieldLogger {
	return l.entry.WithFields(fields)
}
