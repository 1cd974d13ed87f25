package channel

import (
	"fmt"
	"os"

	"github.com/readoutcard/rocdma/host/fs"
	"github.com/readoutcard/rocdma/rocerr"
)

// lock is the composite interprocess lock held for the lifetime of a
// channel: a file lock plus a named mutex, both over files under
// /dev/shm. The two halves use deliberately different primitives:
//
//   - the file lock is a real flock: the kernel releases it automatically
//     if the owning process dies.
//   - the named mutex is an O_EXCL-created marker file, not an flock: it
//     survives its owner crashing and must be removed explicitly.
//
// That asymmetry is what makes a stale mutex diagnosable: if a new Open
// finds the file lock free but the mutex marker still present, a prior
// process must have crashed after acquiring both and before releasing
// either (acquisition order is file lock, then mutex; release order is
// mutex, then file lock, so "mutex held, file lock free" cannot happen by
// any other path than a crash).
type lock struct {
	lockPath  string
	mutexPath string

	lockFile  *fs.File
	haveMutex bool
}

func newLock(lockPath, mutexPath string) *lock {
	return &lock{lockPath: lockPath, mutexPath: mutexPath}
}

// acquire attempts to lock both files. If only the named mutex fails and
// forceUnlock is set, the orphaned marker is removed once and the whole
// sequence is retried exactly once.
func (l *lock) acquire(forceUnlock bool) error {
	err := l.tryAcquire()
	if err == nil {
		return nil
	}
	if forceUnlock && rocerr.Is(err, rocerr.NamedMutexLocked) {
		if rmErr := os.Remove(l.mutexPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return err
		}
		return l.tryAcquire()
	}
	return err
}

// tryAcquire locks the lock file first; if that fails, the mutex is
// never attempted, so a FileLocked failure always means a live holder.
func (l *lock) tryAcquire() error {
	lockFile, err := fs.Open(l.lockPath, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return rocerr.Wrap(err, rocerr.LockFailed, "opening lock file %s", l.lockPath)
	}
	got, err := lockFile.TryLockExclusive()
	if err != nil {
		_ = lockFile.Close()
		return rocerr.Wrap(err, rocerr.LockFailed, "locking %s", l.lockPath)
	}
	if !got {
		_ = lockFile.Close()
		return rocerr.New(rocerr.FileLocked, "channel lock file %s is held by another process", l.lockPath)
	}

	mutexFile, err := os.OpenFile(l.mutexPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		_ = lockFile.Unlock()
		_ = lockFile.Close()
		if os.IsExist(err) {
			return rocerr.New(rocerr.NamedMutexLocked, "named mutex %s is held but the file lock was free; a prior process likely crashed without releasing it", l.mutexPath)
		}
		return rocerr.Wrap(err, rocerr.LockFailed, "creating named-mutex marker %s", l.mutexPath)
	}
	fmt.Fprintf(mutexFile, "%d\n", os.Getpid())
	_ = mutexFile.Close()

	l.lockFile = lockFile
	l.haveMutex = true
	return nil
}

// release unlocks and deletes both files.
func (l *lock) release() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if l.haveMutex {
		if err := os.Remove(l.mutexPath); err != nil && !os.IsNotExist(err) {
			record(err)
		}
		l.haveMutex = false
	}
	if l.lockFile != nil {
		record(l.lockFile.Unlock())
		record(l.lockFile.Close())
		l.lockFile = nil
	}
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		record(err)
	}
	return first
}
