// Package gwlog is the gateway's logging wrapper around glog, matching
// the teacher's convention of a thin per-component prefix over the
// stock verbosity-leveled logger rather than a structured-logging
// library.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package gwlog

import (
	"fmt"

	"github.com/golang/glog"
)

// Logger prefixes every line with a component tag ("archiver",
// "retriever", "transport", ...), the way the teacher tags lines with
// a subsystem name by convention rather than by a typed field.
type Logger struct {
	component string
}

func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) prefix(format string) string {
	return "[" + l.component + "] " + format
}

func (l *Logger) Infof(format string, args ...interface{}) {
	glog.InfoDepth(1, fmt.Sprintf(l.prefix(format), args...))
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(1, fmt.Sprintf(l.prefix(format), args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(1, fmt.Sprintf(l.prefix(format), args...))
}

// V reports whether verbosity level v is enabled, for call sites that
// want to skip formatting work entirely when not logging (glog's own
// idiom: "if gwlog.V(2) { ... }").
func V(level glog.Level) bool {
	return bool(glog.V(level))
}

// Flush flushes all pending log I/O, called from the daemon's shutdown
// path before process exit.
func Flush() {
	glog.Flush()
}
