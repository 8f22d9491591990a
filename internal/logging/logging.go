// Package logging provides the application logger: a thin key/value
// wrapper over the standard log package. Call sites pass alternating
// key-value pairs after the message.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is a leveled key/value logger that writes to stdout.
type Logger struct {
	l *log.Logger
}

// NewLogger creates a new Logger.
func NewLogger() *Logger {
	return &Logger{l: log.New(os.Stdout, "", log.LstdFlags)}
}

// Info logs an informational message.
func (l *Logger) Info(msg string, args ...any) {
	l.write("INFO", msg, args)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.write("WARN", msg, args)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.write("ERROR", msg, args)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) {
	l.write("DEBUG", msg, args)
}

func (l *Logger) write(level, msg string, args []any) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(": ")
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	if len(args)%2 == 1 {
		fmt.Fprintf(&b, " %v", args[len(args)-1])
	}
	l.l.Print(b.String())
}
