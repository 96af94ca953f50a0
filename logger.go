package portalgate

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger is the minimal structured logging surface used throughout the
// client. Messages carry alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ConsoleLogger writes leveled lines to stderr.
type ConsoleLogger struct {
	logger *log.Logger
}

// NewConsoleLogger creates a console logger suitable for development use.
func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{
		logger: log.New(os.Stderr, "portalgate ", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *ConsoleLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log("DEBUG", msg, keysAndValues...)
}

func (l *ConsoleLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log("INFO", msg, keysAndValues...)
}

func (l *ConsoleLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log("WARN", msg, keysAndValues...)
}

func (l *ConsoleLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log("ERROR", msg, keysAndValues...)
}

func (l *ConsoleLogger) log(level, msg string, keysAndValues ...interface{}) {
	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.logger.Println(b.String())
}

// DebugConfig gates per-concern debug logging so a noisy concern can be
// enabled in isolation.
type DebugConfig struct {
	Enabled     bool
	LogRequests bool
	LogCache    bool
	LogRetries  bool
	LogAuth     bool
	LogQueue    bool
}

// DefaultDebugConfig enables all concerns; combine with WithDebugConfig to
// narrow the output.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:     false,
		LogRequests: true,
		LogCache:    true,
		LogRetries:  true,
		LogAuth:     true,
		LogQueue:    true,
	}
}
