package channel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/readoutcard/rocdma/rocerr"
)

func lockPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "chan.lock"), filepath.Join(dir, "chan_Mutex")
}

func TestLockExclusivity(t *testing.T) {
	lockPath, mutexPath := lockPaths(t)

	first := newLock(lockPath, mutexPath)
	if err := first.acquire(false); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer first.release()

	second := newLock(lockPath, mutexPath)
	err := second.acquire(false)
	if !rocerr.Is(err, rocerr.FileLocked) {
		t.Fatalf("second acquire = %v, want FileLocked", err)
	}
}

func TestLockNamedMutexCrashRecovery(t *testing.T) {
	lockPath, mutexPath := lockPaths(t)

	// Simulate a crash: the mutex marker survives (a plain file, not an
	// flock), but nothing holds the file lock anymore.
	if err := os.WriteFile(mutexPath, []byte("12345\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := newLock(lockPath, mutexPath)
	if err := l.acquire(false); !rocerr.Is(err, rocerr.NamedMutexLocked) {
		t.Fatalf("acquire without forceUnlock = %v, want NamedMutexLocked", err)
	}

	l2 := newLock(lockPath, mutexPath)
	if err := l2.acquire(true); err != nil {
		t.Fatalf("acquire with forceUnlock = %v, want success", err)
	}
	defer l2.release()
}

func TestLockReleaseDeletesFiles(t *testing.T) {
	lockPath, mutexPath := lockPaths(t)

	l := newLock(lockPath, mutexPath)
	if err := l.acquire(false); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still exists after release")
	}
	if _, err := os.Stat(mutexPath); !os.IsNotExist(err) {
		t.Errorf("mutex file still exists after release")
	}

	// A fresh lock can now be acquired cleanly.
	l2 := newLock(lockPath, mutexPath)
	if err := l2.acquire(false); err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	defer l2.release()
}
