// Package logger provides a named component logger for the wallet layer.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry bound to a named component.
type Logger struct {
	entry *logrus.Entry
}

// New creates a logger for the named component at the given level.
func New(component, level string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	return &Logger{entry: base.WithField("component", component)}
}

// NewDefault creates an info-level logger for the named component.
func NewDefault(component string) *Logger {
	return New(component, "info")
}

// WithError returns a logger with the error attached as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// WithField returns a logger with an extra field attached.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Debug logs at debug level with optional key/value pairs.
func (l *Logger) Debug(msg string, kv ...any) { l.withKV(kv).Debug(msg) }

// Info logs at info level with optional key/value pairs.
func (l *Logger) Info(msg string, kv ...any) { l.withKV(kv).Info(msg) }

// Warn logs at warn level with optional key/value pairs.
func (l *Logger) Warn(msg string, kv ...any) { l.withKV(kv).Warn(msg) }

// Error logs at error level with optional key/value pairs.
func (l *Logger) Error(msg string, kv ...any) { l.withKV(kv).Error(msg) }

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal(msg string, kv ...any) { l.withKV(kv).Fatal(msg) }

func (l *Logger) withKV(kv []any) *logrus.Entry {
	if len(kv) == 0 {
		return l.entry
	}
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return l.entry.WithFields(fields)
}
