package testutil

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"
)

// LogCapture redirects the default logger into a buffer so tests can assert
// on operational log output.
type LogCapture struct {
	buf      bytes.Buffer
	mu       sync.Mutex
	original io.Writer
}

// NewLogCapture creates a new log capture instance.
func NewLogCapture() *LogCapture {
	return &LogCapture{original: log.Writer()}
}

// Start begins capturing log output.
func (lc *LogCapture) Start() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	log.SetOutput(&syncWriter{lc: lc})
}

// Stop restores the original log output.
func (lc *LogCapture) Stop() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	log.SetOutput(lc.original)
}

// String returns all captured log output.
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Contains reports whether the output contains substr.
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// Count returns how many times substr appears in the output.
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns the captured output split into lines.
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// syncWriter serialises concurrent writes from logging goroutines.
type syncWriter struct {
	lc *LogCapture
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.lc.mu.Lock()
	defer w.lc.mu.Unlock()
	return w.lc.buf.Write(p)
}
