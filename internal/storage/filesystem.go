package storage

import (
	"context"
	"log/slog"
	"path"

	"github.com/teamnewpipe/crashreportimporter/pkg/utils"
)

// ShardPath spreads documents over three directory levels taken from the
// 1, 3 and 5 character prefixes of the hash.
func ShardPath(hashID string) string {
	return path.Join(hashID[:1], hashID[:3], hashID[:5], hashID+".json")
}

type FileSystemOption func(*FileSystemSink)

func WithFileSystemLogger(logger *slog.Logger) FileSystemOption {
	return func(s *FileSystemSink) {
		s.logger = logger
	}
}

// FileSystemSink keeps every record as a JSON document. It never replaces a
// stored document.
type FileSystemSink struct {
	name   string
	files  FileManager
	logger *slog.Logger
}

func NewFileSystemSink(name string, files FileManager, opts ...FileSystemOption) *FileSystemSink {
	s := &FileSystemSink{
		name:   name,
		files:  files,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileSystemSink) Name() string {
	return s.name
}

func (s *FileSystemSink) Save(ctx context.Context, d Delivery) error {
	name := ShardPath(d.Record.HashID())

	exists, err := s.files.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyStored
	}

	data, err := d.Record.MarshalDocument()
	if err != nil {
		return utils.WrapError("marshal document", err)
	}
	if err := s.files.WriteNew(ctx, name, data); err != nil {
		return err
	}

	s.logger.Debug("stored crash record", "sink", s.name, "location", s.files.Location(), "path", name)
	return nil
}
