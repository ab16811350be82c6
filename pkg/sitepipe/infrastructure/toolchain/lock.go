package toolchain

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const lockPollInterval = 200 * time.Millisecond

type fileLock struct {
	file *os.File
}

// acquireLock takes an exclusive advisory lock on path, waiting until it is
// free or ctx is done.
func acquireLock(ctx context.Context, path string) (*fileLock, error) {
	// nolint:gosec
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open lock file %v", path)
	}
	for {
		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{file: file}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			_ = file.Close()
			return nil, errors.Wrapf(err, "failed to lock %v", path)
		}
		select {
		case <-ctx.Done():
			_ = file.Close()
			return nil, errors.Wrapf(ctx.Err(), "waiting for lock %v", path)
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *fileLock) release() error {
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	if err != nil {
		return err
	}
	return closeErr
}
