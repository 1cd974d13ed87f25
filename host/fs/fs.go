// Package fs provides access to the file system on the host.
//
// It wraps file opens behind a single choke point so unit tests can
// inhibit real I/O, and exposes the raw flock calls the channel lock
// needs but the standard library does not expose portably.
package fs

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// Open opens a file with the given open(2) flags.
//
// Returns an error if Inhibit() was called.
func Open(path string, flag int) (*File, error) {
	mu.Lock()
	if inhibited {
		mu.Unlock()
		return nil, errors.New("fs: file I/O is inhibited")
	}
	used = true
	mu.Unlock()

	fd, err := unix.Open(path, flag, 0o600)
	if err != nil {
		return nil, err
	}
	return &File{path: path, fd: fd}, nil
}

// Inhibit inhibits any future file I/O. It panics if any file was opened up
// to now.
//
// It should only be called in unit tests.
func Inhibit() {
	mu.Lock()
	defer mu.Unlock()
	inhibited = true
	if used {
		panic("fs: calling Inhibit() while files were already opened")
	}
}

// File is a thin wrapper around an open file descriptor.
type File struct {
	path string
	fd   int
}

// Fd returns the underlying file descriptor.
func (f *File) Fd() uintptr {
	return uintptr(f.fd)
}

// Close closes the file.
func (f *File) Close() error {
	return unix.Close(f.fd)
}

// ReadAt reads from the file at the given offset.
func (f *File) ReadAt(b []byte, off int64) (int, error) {
	return unix.Pread(f.fd, b, off)
}

// WriteAt writes to the file at the given offset.
func (f *File) WriteAt(b []byte, off int64) (int, error) {
	return unix.Pwrite(f.fd, b, off)
}

// Truncate sets the file's size.
func (f *File) Truncate(size int64) error {
	return unix.Ftruncate(f.fd, size)
}

// TryLockExclusive attempts a non-blocking exclusive flock on the file.
//
// Returns (true, nil) if the lock was acquired, (false, nil) if another
// process already holds it, and a non-nil error for anything else.
func (f *File) TryLockExclusive() (bool, error) {
	err := unix.Flock(f.fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return false, err
}

// Unlock releases a flock held on the file.
func (f *File) Unlock() error {
	return unix.Flock(f.fd, unix.LOCK_UN)
}

//

var (
	mu        sync.Mutex
	inhibited bool
	used      bool
)
