package pool

import "github.com/sirupsen/logrus"

// Logger receives ambient diagnostics emitted by a Pool. The default is a
// no-op; pass a Logger backed by logrus (see NewLogrusLogger) to surface
// them.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

type logrusLogger struct {
	entry logrus.FieldLogger
}

// NewLogrusLogger adapts a logrus.FieldLogger (e.g. logrus.StandardLogger(),
// or an *logrus.Entry carrying fields such as pool name) to Logger.
func NewLogrusLogger(entry logrus.FieldLogger) Logger {
	return logrusLogger{entry: entry}
}

func (l logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
