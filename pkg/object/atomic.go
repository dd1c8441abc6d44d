package object

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicFile is a file that only appears under its destination name once
// Commit succeeds. Until then the bytes live in a hidden temp file in the
// same directory, so readers that look files up by name never observe a
// partial write.
type AtomicFile struct {
	*os.File
	dest string
	done bool
}

// CreateAtomic opens a temp file next to dest. The parent directory is
// created if needed.
func CreateAtomic(dest string) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("atomic create mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("atomic create tmpfile: %w", err)
	}
	return &AtomicFile{File: tmp, dest: dest}, nil
}

// Commit closes the temp file and renames it into place.
func (f *AtomicFile) Commit() error {
	if f.done {
		return fmt.Errorf("atomic commit %s: already finished", f.dest)
	}
	f.done = true
	tmpName := f.Name()
	if err := f.File.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("atomic commit close: %w", err)
	}
	if err := os.Rename(tmpName, f.dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("atomic commit rename: %w", err)
	}
	return nil
}

// Abort discards the temp file. It is a no-op after Commit, which makes
// `defer f.Abort()` safe.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	tmpName := f.Name()
	f.File.Close()
	os.Remove(tmpName)
}

// WriteFileAtomic writes data to dest via temp file and rename.
func WriteFileAtomic(dest string, data []byte) error {
	f, err := CreateAtomic(dest)
	if err != nil {
		return err
	}
	defer f.Abort()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("atomic write: %w", err)
	}
	return f.Commit()
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
