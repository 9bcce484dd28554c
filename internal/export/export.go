// Package export archives built raw disks and optionally uploads them.
package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bootcforge/bootcforge/internal/sparse"
	"github.com/bootcforge/bootcforge/internal/vm"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// ArchiveSuffix is appended to the raw disk path to name its archive.
const ArchiveSuffix = ".sparse.zst"

// Uploader stores archives remotely.
type Uploader interface {
	Upload(ctx context.Context, key, localPath string) (int64, error)
}

// Exporter writes sparse archives of raw disks.
type Exporter struct {
	uploader Uploader
	keyFor   func(buildID string, now time.Time) string
	now      func() time.Time
}

// New creates an exporter. uploader may be nil, in which case upload
// requests fail. keyFor names uploaded objects.
func New(uploader Uploader, keyFor func(buildID string, now time.Time) string) *Exporter {
	return &Exporter{uploader: uploader, keyFor: keyFor, now: time.Now}
}

// ArchivePath returns the archive location for the raw disk in folder.
func ArchivePath(folder string) string {
	return vm.DiskPath(folder) + ArchiveSuffix
}

// Export archives the raw disk of req.Folder and uploads it when asked to.
func (e *Exporter) Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	disk := vm.DiskPath(req.Folder)
	if _, err := os.Stat(disk); err != nil {
		return nil, &vm.MissingDiskError{Path: disk}
	}
	if req.Upload && e.uploader == nil {
		return nil, fmt.Errorf("uploads are not configured")
	}

	archive := ArchivePath(req.Folder)
	st, err := sparse.Archive(ctx, disk, archive)
	if err != nil {
		return nil, fmt.Errorf("failed to archive %s: %w", disk, err)
	}

	res := &types.ExportResult{
		Archive: archive,
		Blocks:  st.Blocks,
		Size:    st.ArchiveSize,
	}
	if !req.Upload {
		return res, nil
	}

	key := e.keyFor(req.ID, e.now())
	if _, err := e.uploader.Upload(ctx, key, archive); err != nil {
		return nil, err
	}
	log.Printf("export: uploaded %s to %s", archive, key)
	res.Key = key
	return res, nil
}
