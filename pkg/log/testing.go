// Package log provides testing utilities for structured logging.
//
// TestLogger runs the zerolog adapter against an in-memory buffer so tests
// can assert on the JSON records a component emitted.

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// captureBuffer serialises writes from concurrent loggers with reads from the test.
type captureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *captureBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *captureBuffer) snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *captureBuffer) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
}

// TestLogger is a Logger whose records are kept in memory as JSON lines.
type TestLogger struct {
	*zerologLogger
	out *captureBuffer
}

// NewTestLogger creates a TestLogger that drops records below level.
//
// Example:
//
//	logger, buffer := log.NewTestLogger(log.LevelDebug)
//	tree, _ := partition.New("l2coe", names, partition.WithLogger(logger))
//	// ... fit, then inspect buffer or logger.GetLogEntries()
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	out := &captureBuffer{}
	zl := zerolog.New(out).Level(toZerolog(level))
	return &TestLogger{zerologLogger: &zerologLogger{zl: zl}, out: out}, &out.buf
}

// GetLogEntries decodes every captured record.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(t.out.snapshot()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether any record mentions message.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.out.snapshot(), message)
}

// ContainsField reports whether a record carries key with value.
// Numbers decode as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if v, ok := entry[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops the captured records.
func (t *TestLogger) Clear() {
	t.out.reset()
}

// TestLoggerProvider hands out loggers that all write to one TestLogger.
type TestLoggerProvider struct {
	logger *TestLogger
}

// NewTestLoggerProvider creates a test provider. Install it with SetProvider
// to capture logs from packages that call GetLoggerWithName.
func NewTestLoggerProvider(level Level) (*TestLoggerProvider, *bytes.Buffer) {
	logger, buffer := NewTestLogger(level)
	return &TestLoggerProvider{logger: logger}, buffer
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *TestLoggerProvider) GetLogger() Logger {
	return p.logger
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel. Loggers already handed out
// keep their level.
func (p *TestLoggerProvider) SetLevel(level Level) {
	p.logger.zl = p.logger.zl.Level(toZerolog(level))
}

// Logger returns the underlying capture logger.
func (p *TestLoggerProvider) Logger() *TestLogger {
	return p.logger
}
