package channel

import (
	"log"

	"github.com/readoutcard/rocdma/engine"
)

// Logger is the logging hook the channel and the engines report through:
// debug on lock acquisition, info on channel open and close, warning on
// everything the engines report (see engineLogAdapter).
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// NewLogger wraps dst as a Logger, one *log.Logger playing every
// severity with the severity as the message prefix.
func NewLogger(dst *log.Logger) Logger {
	return &stdLogger{dst: dst}
}

type stdLogger struct {
	dst *log.Logger
}

func (l *stdLogger) Debugf(format string, args ...interface{}) { l.dst.Printf("DEBUG "+format, args...) }
func (l *stdLogger) Infof(format string, args ...interface{})  { l.dst.Printf("INFO "+format, args...) }
func (l *stdLogger) Warnf(format string, args ...interface{})  { l.dst.Printf("WARN "+format, args...) }

// nopLogger discards everything; used when Open is not given a Logger.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}

// engineLogAdapter satisfies engine.Logger (a single Printf) on top of a
// channel.Logger, reporting every engine message at warning level:
// idempotent startDma, arrival errors, unsettled initial slots, and
// engine A's downstream interface version.
type engineLogAdapter struct{ log Logger }

func (a engineLogAdapter) Printf(format string, args ...interface{}) {
	a.log.Warnf(format, args...)
}

var _ engine.Logger = engineLogAdapter{}
