package onewire

import "github.com/sirupsen/logrus"

// Logger is the injectable logging sink. Debug level, destination, and
// formatting are the caller's decision — the bus controller only ever
// writes through this interface, never to a package-level global.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
}

// logrusLogger adapts *logrus.Entry (or *logrus.Logger) to Logger. New does
// not fall back to it: a nil logger passed to New becomes nopLogger.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l, defaulting to a fresh logrus.Logger at Info level
// when l is nil.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.New()
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (g *logrusLogger) Debugf(format string, args ...interface{}) { g.entry.Debugf(format, args...) }
func (g *logrusLogger) Infof(format string, args ...interface{})  { g.entry.Infof(format, args...) }
func (g *logrusLogger) Warnf(format string, args ...interface{})  { g.entry.Warnf(format, args...) }
func (g *logrusLogger) Errorf(format string, args ...interface{}) { g.entry.Errorf(format, args...) }

func (g *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: g.entry.WithField(key, value)}
}

// nopLogger discards everything; used by tests that don't care about logs.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{})      {}
func (nopLogger) Infof(string, ...interface{})       {}
func (nopLogger) Warnf(string, ...interface{})       {}
func (nopLogger) Errorf(string, ...interface{})      {}
func (n nopLogger) WithField(string, interface{}) Logger { return n }
