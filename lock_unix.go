//go:build !windows

package bootstrap

import (
	"fmt"
	"os"
	"syscall"
	"time"
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

// fileLock holds an exclusive flock() on a lock file. The lock is advisory;
// it only guards against other cooperating bootstrap processes.
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

// Lock acquires the flock by polling with LOCK_NB, doubling the poll interval
// from 10ms up to 100ms until the timeout elapses. flock itself has no
// timeout, so a blocking call could hang a stuck setup forever.
func (l *fileLock) Lock() error {
	if l.held {
		return nil
	}

	deadline := time.Now().Add(l.timeout)
	for wait := 10 * time.Millisecond; ; {
		if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
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

// Unlock drops the flock and closes the lock file.
func (l *fileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	var err error
	if l.held {
		err = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	}
	l.file.Close()
	l.file = nil
	l.held = false
	return err
}
