package main

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// leveledLogger routes engine logging through logrus so --log controls both.
type leveledLogger struct {
	entry *logrus.Entry
}

var _ logging.LeveledLogger = leveledLogger{}

func newEngineLogger(scope string) leveledLogger {
	return leveledLogger{entry: logrus.WithField("scope", scope)}
}

func (l leveledLogger) Trace(msg string)                  { l.entry.Trace(msg) }
func (l leveledLogger) Tracef(format string, args ...any) { l.entry.Tracef(format, args...) }
func (l leveledLogger) Debug(msg string)                  { l.entry.Debug(msg) }
func (l leveledLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l leveledLogger) Info(msg string)                   { l.entry.Info(msg) }
func (l leveledLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l leveledLogger) Warn(msg string)                   { l.entry.Warn(msg) }
func (l leveledLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l leveledLogger) Error(msg string)                  { l.entry.Error(msg) }
func (l leveledLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
