package storage

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const lockPoll = 10 * time.Millisecond

// FileLock is an advisory cross-process lock on path + ".lock". The holder
// writes its PID into the file so a timeout can name the other process.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock for path. Nothing is acquired until Lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}

// Lock polls for an exclusive lock until timeout elapses, then returns
// ErrLockTimeout.
func (l *FileLock) Lock(timeout time.Duration) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for tryLock(f) != nil {
		if time.Now().After(deadline) {
			holder := lockHolder(f)
			f.Close()
			if holder != "" {
				return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: fmt.Errorf("%w: held by pid %s", ErrLockTimeout, holder)}
			}
			return &StorageError{Op: "lock", Entity: "file", ID: l.path, Err: ErrLockTimeout}
		}
		time.Sleep(lockPoll)
	}

	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}
	l.file = f
	return nil
}

// Unlock clears the holder PID and releases the lock. The lock file is never
// removed, so every locker contends on the same inode.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	f.Truncate(0)
	unlock(f)
	return f.Close()
}

func lockHolder(f *os.File) string {
	buf := make([]byte, 16)
	n, _ := f.ReadAt(buf, 0)
	return strings.TrimSpace(string(buf[:n]))
}
