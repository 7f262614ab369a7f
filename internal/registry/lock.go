package registry

import (
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an flock(2) advisory lock held on a dedicated file
type fileLock struct {
	file *os.File
}

// acquire locks path. A shared lock opens the file read-only and never
// creates it, so readers need no write access to the registry directory.
func acquire(path string, exclusive bool) (*fileLock, error) {
	flag, how := os.O_RDONLY, unix.LOCK_SH
	if exclusive {
		flag, how = os.O_RDWR|os.O_CREATE, unix.LOCK_EX
	}

	file, err := os.OpenFile(path, flag, 0o664)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(file.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		file.Close()
		return nil, err
	}

	return &fileLock{file: file}, nil
}

// release unlocks and closes the file. A nil lock is a no-op.
func (l *fileLock) release() error {
	if l == nil {
		return nil
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
