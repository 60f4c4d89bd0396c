// Package file provides advisory file locks.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/linchenxuan/incidental/log"
)

var (
	// ErrLocked is returned when another holder already has the lock.
	ErrLocked = errors.New("file locked")
	// _fileMode is the mode for files created by Lock.
	_fileMode fs.FileMode = 0o644
)

// FileLock is an exclusive flock held on an open file.
type FileLock struct {
	Path string   // Path is the locked file.
	File *os.File // File is open while the lock is held.
}

// NewFileLock creates a new FileLock instance for the given path.
func NewFileLock(p string) *FileLock {
	return &FileLock{
		Path: p,
	}
}

// IsLock reports whether another holder has the lock on p.
func IsLock(p string) bool {
	fl := NewFileLock(p)
	if err := fl.Lock(os.O_RDONLY); err != nil {
		return errors.Is(err, ErrLocked)
	}
	_ = fl.Unlock()
	return false
}

// Lock opens the file with flag, creating it if missing, and takes an exclusive lock.
// It does not block: a lock held elsewhere yields ErrLocked.
func (l *FileLock) Lock(flag int) error {
	f, err := os.OpenFile(l.Path, flag|os.O_CREATE, _fileMode)
	if err != nil {
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		if err2 := f.Close(); err2 != nil {
			log.Error().Err(err2).Str("path", l.Path).Msg("close file")
		}
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("%w: %s", ErrLocked, l.Path)
		}
		return fmt.Errorf("flock %s: %w", l.Path, err)
	}
	l.File = f
	log.Debug().Str("path", l.Path).Msg("file locked")
	return nil
}

// Unlock releases the lock and closes the file.
func (l *FileLock) Unlock() error {
	if l.File == nil {
		return nil
	}
	f := l.File
	l.File = nil
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return errors.Join(err, f.Close())
}

// Close implements io.Closer by calling Unlock.
func (l *FileLock) Close() error {
	return l.Unlock()
}
