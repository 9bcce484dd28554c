// Package sparse archives raw disk images by storing only their non-zero
// blocks.
//
// A freshly built raw disk is mostly unallocated space, so the archive size
// tracks the installed content rather than the disk size.
//
// Format (.sparse.zst), all inside one zstd stream:
//   - header: magic "BCFSPAR1", disk size uint64 (little-endian)
//   - blocks: offset uint64 + BlockSize bytes, for every non-zero block; the
//     final block of the disk may be short
//   - end of the zstd stream
package sparse

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	BlockSize = 4096
	Magic     = "BCFSPAR1"
)

// Stats describes an archive.
type Stats struct {
	// Blocks is the number of non-zero blocks stored.
	Blocks int
	// DiskSize is the apparent size of the disk image.
	DiskSize int64
	// ArchiveSize is the size of the compressed archive file.
	ArchiveSize int64
}

// Archive writes a sparse archive of the disk at srcPath to dstPath. The
// archive is written to a temporary file and renamed into place, so a
// canceled run leaves no partial archive behind.
func Archive(ctx context.Context, srcPath, dstPath string) (Stats, error) {
	t0 := time.Now()

	src, err := os.Open(srcPath)
	if err != nil {
		return Stats{}, fmt.Errorf("open disk: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return Stats{}, fmt.Errorf("stat disk: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), filepath.Base(dstPath)+".*.tmp")
	if err != nil {
		return Stats{}, fmt.Errorf("create archive: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (Stats, error) {
		tmp.Close()
		os.Remove(tmpName)
		return Stats{}, err
	}

	blocks, err := write(ctx, tmp, src, info.Size())
	if err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync archive: %w", err))
	}
	archived, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fail(fmt.Errorf("archive size: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return Stats{}, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpName, dstPath); err != nil {
		os.Remove(tmpName)
		return Stats{}, fmt.Errorf("rename archive: %w", err)
	}

	log.Printf("sparse: archived %s (%d blocks, %d MB apparent, %d MB archive, %dms)",
		srcPath, blocks, info.Size()/1024/1024, archived/1024/1024, time.Since(t0).Milliseconds())
	return Stats{Blocks: blocks, DiskSize: info.Size(), ArchiveSize: archived}, nil
}

// write streams the archive of src (size bytes long) to w.
func write(ctx context.Context, w io.Writer, src io.Reader, size int64) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}

	var header [16]byte
	copy(header[:8], Magic)
	binary.LittleEndian.PutUint64(header[8:], uint64(size))
	if _, err := zw.Write(header[:]); err != nil {
		zw.Close()
		return 0, fmt.Errorf("write header: %w", err)
	}

	buf := make([]byte, BlockSize)
	var offsetBuf [8]byte
	blocks := 0
	for offset := int64(0); offset < size; offset += BlockSize {
		if (offset/BlockSize)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				zw.Close()
				return 0, err
			}
		}

		n, err := io.ReadFull(src, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			zw.Close()
			return 0, fmt.Errorf("read block at offset %d: %w", offset, err)
		}
		if n == 0 {
			break
		}
		if isZero(buf[:n]) {
			continue
		}

		binary.LittleEndian.PutUint64(offsetBuf[:], uint64(offset))
		if _, err := zw.Write(offsetBuf[:]); err != nil {
			zw.Close()
			return 0, fmt.Errorf("write offset: %w", err)
		}
		if _, err := zw.Write(buf[:n]); err != nil {
			zw.Close()
			return 0, fmt.Errorf("write block data: %w", err)
		}
		blocks++
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zstd: %w", err)
	}
	return blocks, nil
}

// Extract recreates the disk stored in archivePath at dstPath as a sparse
// file.
func Extract(ctx context.Context, archivePath, dstPath string) (Stats, error) {
	src, err := os.Open(archivePath)
	if err != nil {
		return Stats{}, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	zr, err := zstd.NewReader(src)
	if err != nil {
		return Stats{}, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var header [16]byte
	if _, err := io.ReadFull(zr, header[:]); err != nil {
		return Stats{}, fmt.Errorf("read header: %w", err)
	}
	if string(header[:8]) != Magic {
		return Stats{}, fmt.Errorf("invalid magic: %q (expected %q)", header[:8], Magic)
	}
	size := int64(binary.LittleEndian.Uint64(header[8:]))

	dst, err := os.Create(dstPath)
	if err != nil {
		return Stats{}, fmt.Errorf("create disk: %w", err)
	}
	defer dst.Close()
	if err := dst.Truncate(size); err != nil {
		return Stats{}, fmt.Errorf("truncate to %d: %w", size, err)
	}

	var offsetBuf [8]byte
	buf := make([]byte, BlockSize)
	blocks := 0
	for {
		if blocks%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return Stats{}, err
			}
		}

		if _, err := io.ReadFull(zr, offsetBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Stats{}, fmt.Errorf("read block offset: %w", err)
		}
		offset := int64(binary.LittleEndian.Uint64(offsetBuf[:]))
		if offset < 0 || offset >= size {
			return Stats{}, fmt.Errorf("block offset %d outside disk of %d bytes", offset, size)
		}

		want := int64(BlockSize)
		if size-offset < want {
			want = size - offset
		}
		if _, err := io.ReadFull(zr, buf[:want]); err != nil {
			return Stats{}, fmt.Errorf("read block data at offset %d: %w", offset, err)
		}
		if _, err := dst.WriteAt(buf[:want], offset); err != nil {
			return Stats{}, fmt.Errorf("write block at offset %d: %w", offset, err)
		}
		blocks++
	}

	info, err := src.Stat()
	if err != nil {
		return Stats{}, fmt.Errorf("stat archive: %w", err)
	}
	return Stats{Blocks: blocks, DiskSize: size, ArchiveSize: info.Size()}, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
