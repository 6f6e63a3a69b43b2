//go:build windows

package bootstrap

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// Locker serializes access to a shared resource across processes. Two things
// in this package need it: the setup pipeline (one bootstrap run per
// workspace) and ledger writes.
type Locker interface {
	// Lock blocks until the lock is acquired or the timeout expires.
	Lock() error

	// Unlock releases the lock. Safe to call more than once.
	Unlock() error
}

// fileLock holds an exclusive LockFileEx lock on the first byte of a lock
// file. Unlike the unix flock variant, Windows file locks are mandatory.
type fileLock struct {
	file    *os.File
	timeout time.Duration
	held    bool
}

// newFileLock opens (creating if needed) the lock file at path.
// The lock itself is not acquired until Lock is called.
func newFileLock(path string, timeout time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return &fileLock{file: f, timeout: timeout}, nil
}

// Lock acquires the lock by polling with LOCKFILE_FAIL_IMMEDIATELY, doubling
// the poll interval from 10ms up to 100ms until the timeout elapses.
func (l *fileLock) Lock() error {
	if l.held {
		return nil
	}

	deadline := time.Now().Add(l.timeout)
	for wait := 10 * time.Millisecond; ; {
		err := windows.LockFileEx(
			windows.Handle(l.file.Fd()),
			windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
			0,
			1, 0,
			&windows.Overlapped{},
		)
		if err == nil {
			l.held = true
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("lock timeout after %v", l.timeout)
		}
		time.Sleep(wait)
		if wait < 100*time.Millisecond {
			wait *= 2
		}
	}
}

// Unlock drops the lock and closes the lock file.
func (l *fileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	var err error
	if l.held {
		err = windows.UnlockFileEx(
			windows.Handle(l.file.Fd()),
			0,
			1, 0,
			&windows.Overlapped{},
		)
	}
	l.file.Close()
	l.file = nil
	l.held = false
	return err
}
