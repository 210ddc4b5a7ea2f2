package fileio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/INLOpen/nexuslake/core"
	"github.com/google/uuid"
)

// Local stores files under a root directory. Writes go to a temp file that is
// synced, closed and renamed into place so readers never observe partial files.
type Local struct {
	root string
}

var _ FileIO = (*Local)(nil)

// NewLocal creates a Local rooted at dir. An empty dir means paths are used as-is.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

func (l *Local) resolve(path string) string {
	if l.root == "" {
		return filepath.FromSlash(path)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
}

func (l *Local) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (l *Local) Write(ctx context.Context, path string, data []byte, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	final := l.resolve(path)
	if !overwrite {
		if _, err := os.Stat(final); err == nil {
			return fmt.Errorf("failed to write %s: %w", path, fs.ErrExist)
		}
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", path, err)
	}

	tempPath := core.FormatTempFilename(final, uuid.NewString()+".tmp")
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file for %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file for %s: %w", path, err)
	}
	// Close before rename for Windows.
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file for %s: %w", path, err)
	}
	if !overwrite {
		// Link fails if the target appeared meanwhile, unlike rename.
		if err := os.Link(tempPath, final); err != nil {
			os.Remove(tempPath)
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("failed to write %s: %w", path, fs.ErrExist)
			}
			return fmt.Errorf("failed to publish %s: %w", path, err)
		}
		os.Remove(tempPath)
		return nil
	}
	if err := os.Rename(tempPath, final); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}

func (l *Local) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	target := l.resolve(path)
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() && recursive {
		if err := os.RemoveAll(target); err != nil {
			return false, fmt.Errorf("failed to delete %s: %w", path, err)
		}
		return true, nil
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		if info.IsDir() && isDirNotEmpty(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return true, nil
}

func isDirNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

func (l *Local) List(ctx context.Context, dir string) ([]FileStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.resolve(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	out := make([]FileStatus, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileStatus{
			Path:    joinRel(strings.TrimSuffix(dir, "/"), e.Name()),
			Size:    info.Size(),
			IsDir:   e.IsDir(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (l *Local) Mkdirs(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.resolve(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
