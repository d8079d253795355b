package diaglog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// rollingWriter appends to a single file and starts the file over once the
// next write would push it past the limit. Old entries are lost on rollover;
// the file never grows past limit bytes plus one entry.
type rollingWriter struct {
	mu    sync.Mutex
	file  *os.File
	used  int64
	limit int64
}

func newRollingWriter(path string, limit int64) (*rollingWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	used, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &rollingWriter{file: file, used: used, limit: limit}, nil
}

func (rw *rollingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.used+int64(len(p)) > rw.limit {
		if err := rw.rollOver(); err != nil {
			return 0, fmt.Errorf("log rollover failed: %w", err)
		}
	}

	n, err := rw.file.Write(p)
	rw.used += int64(n)
	if err != nil {
		return n, err
	}
	// Entries must survive a crash; the whole point of this log is
	// reconstructing what happened before one.
	_ = rw.file.Sync()
	return n, nil
}

// rollOver discards the file contents in place so the open handle and any
// tail -f readers stay valid.
func (rw *rollingWriter) rollOver() error {
	if err := rw.file.Truncate(0); err != nil {
		return err
	}
	if _, err := rw.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	rw.used = 0
	return nil
}

func (rw *rollingWriter) close() error {
	_ = rw.file.Sync()
	return rw.file.Close()
}
