package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootcforge/bootcforge/internal/storage"
	"github.com/bootcforge/bootcforge/pkg/types"
)

type fakeUploader struct {
	keys  []string
	paths []string
}

func (f *fakeUploader) Upload(_ context.Context, key, localPath string) (int64, error) {
	f.keys = append(f.keys, key)
	f.paths = append(f.paths, localPath)
	return 1, nil
}

func writeRawDisk(t *testing.T, folder string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(folder, "image"), 0755))
	f, err := os.Create(filepath.Join(folder, "image", "disk.raw"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(1<<20))
	_, err = f.WriteAt([]byte("boot"), 0)
	require.NoError(t, err)
}

func TestExportLocal(t *testing.T) {
	folder := t.TempDir()
	writeRawDisk(t, folder)

	e := New(nil, storage.ExportKey)
	res, err := e.Export(context.Background(), types.ExportRequest{ID: "b1", Folder: folder})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(folder, "image", "disk.raw.sparse.zst"), res.Archive)
	assert.Equal(t, 1, res.Blocks)
	assert.Empty(t, res.Key)
	assert.FileExists(t, res.Archive)
}

func TestExportUpload(t *testing.T) {
	folder := t.TempDir()
	writeRawDisk(t, folder)

	up := &fakeUploader{}
	e := New(up, storage.ExportKey)
	e.now = func() time.Time { return time.Unix(42, 0) }

	res, err := e.Export(context.Background(), types.ExportRequest{ID: "b1", Folder: folder, Upload: true})
	require.NoError(t, err)
	assert.Equal(t, "exports/b1/42.sparse.zst", res.Key)
	assert.Equal(t, []string{res.Archive}, up.paths)
}

func TestExportErrors(t *testing.T) {
	e := New(nil, storage.ExportKey)
	_, err := e.Export(context.Background(), types.ExportRequest{ID: "b1", Folder: t.TempDir()})
	assert.ErrorContains(t, err, "Raw disk image not found")

	folder := t.TempDir()
	writeRawDisk(t, folder)
	_, err = e.Export(context.Background(), types.ExportRequest{ID: "b1", Folder: folder, Upload: true})
	assert.ErrorContains(t, err, "not configured")
}
