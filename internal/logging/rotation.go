package logging

import (
	"fmt"
	"os"
	"sync"
)

// Rotation defaults for the autonomy.log sink.
const (
	defaultRotateLimit   = 10 * 1024 * 1024
	defaultRotateBackups = 3
)

// rotatingFile is an append-only log sink with size-based rotation. When a
// write would push the file past the limit, the live file becomes the .1
// backup, existing backups shift up one slot, and the oldest falls off.
// It is safe for concurrent use.
type rotatingFile struct {
	mu sync.Mutex

	path    string
	limit   int64
	backups int

	file *os.File
	size int64
}

// openRotatingFile opens path for appending. A limit of 0 disables
// rotation.
func openRotatingFile(path string, limit int64, backups int) (*rotatingFile, error) {
	r := &rotatingFile{path: path, limit: limit, backups: backups}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Write implements io.Writer. A failed rotation is reported on stderr and
// the entry is still written, so log data survives a broken rotation.
func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, fmt.Errorf("log file is closed")
	}
	if r.limit > 0 && r.size+int64(len(p)) > r.limit {
		if err := r.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: log rotation failed: %v\n", err)
			if r.file == nil {
				if oerr := r.open(); oerr != nil {
					return 0, oerr
				}
			}
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate closes the live file, shifts the backup chain, and reopens a
// fresh file at the base path. Caller must hold the mutex.
func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	if r.backups < 1 {
		if err := os.Remove(r.path); err != nil {
			return err
		}
		return r.open()
	}

	os.Remove(backupName(r.path, r.backups))
	for i := r.backups - 1; i >= 1; i-- {
		from := backupName(r.path, i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, backupName(r.path, i+1)); err != nil {
			return err
		}
	}
	if err := os.Rename(r.path, backupName(r.path, 1)); err != nil {
		return err
	}
	return r.open()
}

func backupName(path string, i int) string {
	return fmt.Sprintf("%s.%d", path, i)
}

// Close syncs and closes the live file. Further writes fail.
func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	if err := r.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}
