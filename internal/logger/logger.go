// Package logger is the leveled logger used by the ingestion core.
// Info, Warn and Error always print; Debug prints only in verbose mode.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	now               = time.Now
)

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if debug output is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the writer logs go to. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		write("DEBUG", format, args...)
	}
}

// Info prints an informational message.
func Info(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	write("INFO", format, args...)
}

// Warn prints a recoverable problem.
func Warn(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	write("WARN", format, args...)
}

// Error prints a failure that aborted an operation.
func Error(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	write("ERROR", format, args...)
}

// write must be called with mu held.
func write(level, format string, args ...any) {
	fmt.Fprintf(output, "%s [%s] %s\n", now().UTC().Format(time.RFC3339), level, fmt.Sprintf(format, args...))
}
