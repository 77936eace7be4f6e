// Package trace provides the simulator's per-stage trace logging, gated
// by a verbosity flag. One tag-prefixed helper per pipeline stage.
package trace

import (
	"io"
	"log"
)

// Logger wraps a standard log.Logger with one tag-prefixed helper per
// pipeline stage, each a no-op unless verbose output is enabled.
type Logger struct {
	verbose bool
	log     *log.Logger
}

// New creates a Logger writing to w. Lines are emitted only when verbose
// is true; otherwise every helper is a cheap no-op.
func New(w io.Writer, verbose bool) *Logger {
	return &Logger{
		verbose: verbose,
		log:     log.New(w, "", 0),
	}
}

func (l *Logger) emit(tag, format string, args ...any) {
	if l == nil || !l.verbose {
		return
	}
	l.log.Printf("[%s] "+format, append([]any{tag}, args...)...)
}

// FTQ logs a next-PC/fetch-target-queue trace line.
func (l *Logger) FTQ(format string, args ...any) { l.emit("FTQ", format, args...) }

// IFU logs a fetch-unit trace line.
func (l *Logger) IFU(format string, args ...any) { l.emit("IFU", format, args...) }

// IDU logs a decode-unit trace line.
func (l *Logger) IDU(format string, args ...any) { l.emit("IDU", format, args...) }

// DIS logs a dispatch-unit trace line.
func (l *Logger) DIS(format string, args ...any) { l.emit("DIS", format, args...) }

// SCH logs a scheduler trace line.
func (l *Logger) SCH(format string, args ...any) { l.emit("SCH", format, args...) }

// ISS logs an issue-unit trace line.
func (l *Logger) ISS(format string, args ...any) { l.emit("ISS", format, args...) }

// ALU logs an execution-unit trace line.
func (l *Logger) ALU(format string, args ...any) { l.emit("ALU", format, args...) }

// RCU logs a retire-control trace line.
func (l *Logger) RCU(format string, args ...any) { l.emit("RCU", format, args...) }

// RAT logs a register-alias-table mutation trace line.
func (l *Logger) RAT(format string, args ...any) { l.emit("RAT", format, args...) }
