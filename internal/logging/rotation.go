package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer over a size-bounded log file, used by
// cmd/guacgo-demo so a long-running session host's logs don't grow
// without limit. Safe for concurrent use by multiple loggers.
type RotatingWriter struct {
	mu sync.Mutex

	path     string
	maxBytes int64
	keep     int

	cur      *os.File
	curBytes int64
}

// NewRotatingWriter opens (creating if needed) the log file at path,
// rotating once it exceeds maxSizeMB. Up to keep rotated copies are
// retained, oldest deleted first.
func NewRotatingWriter(path string, maxSizeMB, keep int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if keep <= 0 {
		keep = 3
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rw := &RotatingWriter{
		path:     path,
		maxBytes: int64(maxSizeMB) * 1024 * 1024,
		keep:     keep,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// Write implements io.Writer, rotating first if p would push the current
// file past maxBytes.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.curBytes+int64(len(p)) > rw.maxBytes {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := rw.cur.Write(p)
	rw.curBytes += int64(n)
	return n, err
}

// Reopen closes and reopens the log file, for responding to an external
// log-rotation signal (e.g. SIGHUP) rather than this writer's own
// size-based rotation.
func (rw *RotatingWriter) Reopen() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.cur != nil {
		rw.cur.Close()
	}
	return rw.open()
}

// Close closes the underlying file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.cur == nil {
		return nil
	}
	return rw.cur.Close()
}

// TeeWriter returns a writer that duplicates every write to both primary
// and secondary, for teeing file output to stdout.
func TeeWriter(primary, secondary io.Writer) io.Writer {
	return io.MultiWriter(primary, secondary)
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	rw.cur = f
	rw.curBytes = info.Size()
	return nil
}

func (rw *RotatingWriter) rotate() error {
	if rw.cur != nil {
		rw.cur.Close()
	}

	// Shift backups oldest-first so a crash mid-rotation loses at most
	// the newest backup slot, never the whole chain.
	for gen := rw.keep; gen >= 1; gen-- {
		if gen == rw.keep {
			os.Remove(rw.backupPath(gen))
			continue
		}
		os.Rename(rw.backupPath(gen), rw.backupPath(gen+1))
	}
	os.Rename(rw.path, rw.backupPath(1))

	return rw.open()
}

func (rw *RotatingWriter) backupPath(gen int) string {
	if gen <= 0 {
		return rw.path
	}
	return fmt.Sprintf("%s.%d", rw.path, gen)
}
