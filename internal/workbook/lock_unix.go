//go:build unix

package workbook

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// probeMu serializes probes of the same path inside this process. flock
// conflicts between open file descriptions of one process too, so two
// concurrent probes would each see the other as a competing writer.
var probeMu sync.Map // cleaned path -> *sync.Mutex

func probeLockFor(path string) *sync.Mutex {
	l, _ := probeMu.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	return l.(*sync.Mutex)
}

// probeLock tries a non-blocking exclusive flock and releases it immediately.
func probeLock(path string) (bool, error) {
	l := probeLockFor(path)
	l.Lock()
	defer l.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return true, nil
		}
		return false, fmt.Errorf("flock %s: %w", path, err)
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false, nil
}
