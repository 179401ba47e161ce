package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnewpipe/crashreportimporter/internal/record"
	"github.com/teamnewpipe/crashreportimporter/internal/stacktrace"
	"github.com/teamnewpipe/crashreportimporter/internal/storage"
	"github.com/teamnewpipe/crashreportimporter/pkg/mock"
)

func newDelivery(t *testing.T, info map[string]any) storage.Delivery {
	t.Helper()
	if _, ok := info["exceptions"]; !ok {
		info["exceptions"] = []any{"com.example.Foo: bad\n\tat com.example.Foo.bar(Foo.java:42)"}
	}
	rec := record.Assemble("a@example.com", "crashreport@newpipe.net",
		time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC), "plain body", info)
	exc, err := stacktrace.FromInfo(info)
	require.NoError(t, err)
	return storage.Delivery{Record: rec, Exception: exc}
}

func TestShardPath(t *testing.T) {
	hash := "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
	assert.Equal(t, "a/abc/abcde/"+hash+".json", storage.ShardPath(hash))
}

func TestFileSystemSinkIsIdempotent(t *testing.T) {
	root := t.TempDir()
	sink := storage.NewFileSystemSink("directory", storage.OSFileManager{Root: root},
		storage.WithFileSystemLogger(mock.SetupLogger(t)))
	d := newDelivery(t, map[string]any{"package": "org.schabi.newpipe"})
	ctx := context.Background()

	require.NoError(t, sink.Save(ctx, d))

	target := filepath.Join(root, filepath.FromSlash(storage.ShardPath(d.Record.HashID())))
	first, err := os.ReadFile(target)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(first, &doc))
	assert.Equal(t, "crashreport@newpipe.net", doc["to"])
	assert.Equal(t, float64(1646128800), doc["timestamp"])
	assert.Equal(t, "plain body", doc["plaintext"])
	assert.Contains(t, doc["newpipe-exception-info"], "package")

	err = sink.Save(ctx, d)
	assert.ErrorIs(t, err, storage.ErrAlreadyStored)

	second, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFileSystemSinkLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	sink := storage.NewFileSystemSink("directory", storage.OSFileManager{Root: root})
	d := newDelivery(t, map[string]any{})
	require.NoError(t, sink.Save(context.Background(), d))

	dir := filepath.Dir(filepath.Join(root, filepath.FromSlash(storage.ShardPath(d.Record.HashID()))))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, d.Record.HashID()+".json", entries[0].Name())
}

func TestOSFileManagerWriteNewDoesNotOverwrite(t *testing.T) {
	files := storage.OSFileManager{Root: t.TempDir()}
	ctx := context.Background()

	require.NoError(t, files.WriteNew(ctx, "a/b.json", []byte("one")))
	err := files.WriteNew(ctx, "a/b.json", []byte("two"))
	assert.ErrorIs(t, err, storage.ErrAlreadyStored)

	data, err := os.ReadFile(filepath.Join(files.Root, "a", "b.json"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	exists, err := files.Exists(ctx, "a/b.json")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = files.Exists(ctx, "a/c.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileSystemSinkWithMockFileManager(t *testing.T) {
	files := mock.NewMockFileManager()
	sink := storage.NewFileSystemSink("memory", files)
	d := newDelivery(t, map[string]any{})
	ctx := context.Background()

	require.NoError(t, sink.Save(ctx, d))
	assert.ErrorIs(t, sink.Save(ctx, d), storage.ErrAlreadyStored)
	assert.Equal(t, 1, files.Writes)
	assert.Contains(t, files.Files, storage.ShardPath(d.Record.HashID()))

	broken := &mock.MockFileManager{Err: errors.New("disk on fire")}
	err := storage.NewFileSystemSink("broken", broken).Save(ctx, d)
	assert.EqualError(t, err, "disk on fire")
}
