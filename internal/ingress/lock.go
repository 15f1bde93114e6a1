package ingress

import (
	"fmt"
	"os"
	"strconv"
)

// fileLock is a process-wide exclusive lock backed by O_EXCL file
// creation: at most one ingress loop may hold it on a given node (spec.md
// §4.6 "refuses to start if the lock exists").
type fileLock struct {
	path string
	file *os.File
}

// acquireLock creates path exclusively, writing this process's pid into
// it. Returns an error if the lock file already exists.
func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("ingress lock already held: %s", path)
		}
		return nil, fmt.Errorf("acquire ingress lock: %w", err)
	}
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write ingress lock: %w", err)
	}
	return &fileLock{path: path, file: f}, nil
}

// Release closes and removes the lock file, allowing a future ingress loop
// to start on this node.
func (l *fileLock) Release() error {
	if l == nil {
		return nil
	}
	l.file.Close()
	return os.Remove(l.path)
}
