// Package fileio is the object-store abstraction the metadata core reads and
// writes through. Paths are slash-separated; implementations map them onto a
// local directory tree or an object-store key space.
package fileio

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// FileStatus describes one listed entry.
type FileStatus struct {
	Path    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// FileIO is the storage contract. Read of a missing file returns an error for
// which IsNotExist reports true. Delete returns (false, nil) when the path is absent
// or is a non-empty directory and recursive is false.
type FileIO interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte, overwrite bool) error
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string, recursive bool) (bool, error)
	List(ctx context.Context, dir string) ([]FileStatus, error)
	Mkdirs(ctx context.Context, path string) error
}

// IsNotExist reports whether err means the path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// IsExist reports whether err means a non-overwriting write hit an existing file.
func IsExist(err error) bool {
	return errors.Is(err, fs.ErrExist)
}

// DeleteQuietly deletes a file and reports failures through onErr instead of
// returning them. Used by rollback paths that must surface the original error.
func DeleteQuietly(ctx context.Context, io FileIO, path string, onErr func(path string, err error)) {
	if _, err := io.Delete(ctx, path, false); err != nil && onErr != nil {
		onErr(path, err)
	}
}
