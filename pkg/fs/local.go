package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local is an api.Storer and api.Committer backed by the local file system.
type Local struct{}

func NewLocalStorage() *Local {
	return &Local{}
}

func (l *Local) OpenRead(path string, offset, length int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("fs: seek %s to %d: %w", path, offset, err)
		}
	}

	if length < 0 {
		return f, nil
	}

	return &limitReadCloser{
		r: io.LimitReader(f, length),
		c: f,
	}, nil
}

func (l *Local) Size(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if stat.IsDir() {
		return 0, fmt.Errorf("fs: %s is a directory", path)
	}

	return stat.Size(), nil
}

// OpenWrite creates path and any missing parent directories. Data is written
// to a sibling temporary file that replaces path only when Close succeeds, so
// a failed write never leaves a truncated file under the final name.
func (l *Local) OpenWrite(path string) (io.WriteCloser, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fs: failed to create directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}

	return &atomicFile{f: f, path: path}, nil
}

func (l *Local) Rename(from, to string) error {
	dir := filepath.Dir(to)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fs: failed to create directory %s: %w", dir, err)
	}

	return os.Rename(from, to)
}

func (l *Local) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

type limitReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitReadCloser) Read(p []byte) (int, error) {
	return l.r.Read(p)
}

func (l *limitReadCloser) Close() error {
	return l.c.Close()
}

type atomicFile struct {
	f      *os.File
	path   string
	closed bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	return a.f.Write(p)
}

func (a *atomicFile) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	tmp := a.f.Name()
	err := errors.Join(a.f.Sync(), a.f.Close())
	if err == nil {
		err = os.Rename(tmp, a.path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fs: failed to write %s: %w", a.path, err)
	}

	return nil
}

// Abort discards everything written and leaves path untouched.
func (a *atomicFile) Abort() error {
	if a.closed {
		return nil
	}
	a.closed = true

	tmp := a.f.Name()
	return errors.Join(a.f.Close(), os.Remove(tmp))
}
