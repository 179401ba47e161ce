package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/teamnewpipe/crashreportimporter/pkg/utils"
)

// FileManager is the backend of a FileSystemSink. Names are slash separated
// and relative to the backend's root.
type FileManager interface {
	Exists(ctx context.Context, name string) (bool, error)
	// WriteNew stores data under name unless something is already stored
	// there, in which case it returns ErrAlreadyStored.
	WriteNew(ctx context.Context, name string, data []byte) error
	Location() string
}

// OSFileManager stores files below a local directory.
type OSFileManager struct {
	Root string
}

func (m OSFileManager) Location() string {
	return m.Root
}

func (m OSFileManager) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(m.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, utils.WrapError("stat", err)
}

// WriteNew writes to a temporary file first and hard links it into place,
// so readers never observe a partial document and an existing file is never
// replaced.
func (m OSFileManager) WriteNew(_ context.Context, name string, data []byte) error {
	target := m.path(name)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return utils.WrapError("create directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return utils.WrapError("create temp file", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return utils.WrapError("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return utils.WrapError("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return utils.WrapError("close temp file", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return utils.WrapError("chmod temp file", err)
	}

	if err := os.Link(tmp.Name(), target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrAlreadyStored
		}
		return utils.WrapError("link", err)
	}
	return nil
}

func (m OSFileManager) path(name string) string {
	return filepath.Join(m.Root, filepath.FromSlash(name))
}
