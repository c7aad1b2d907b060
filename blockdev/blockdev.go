// Package blockdev implements the fixed-size random-access block device
// that sits between a host container file and the filesystem layer in
// package fs.
//
// A Device owns the host file descriptor, a memory-mapped header+bitmap
// prefix, and the authoritative free-block count. It knows nothing about
// directories or files; its vocabulary is block indices and raw bytes.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sfsgo/simplefs/bitmap"
)

// Device is a fixed-size block array backed by a host file.
type Device struct {
	file       *os.File
	meta       []byte // mmap'd header + bitmap region
	metaSize   int64
	numBlocks  int
	bm         *bitmap.View
	volumeID   uuid.UUID
	path       string
}

// Open creates filename if it does not exist (formatting a fresh,
// all-free container of numBlocks blocks) or opens it if it does,
// validating that the existing container agrees with numBlocks.
//
// Validation failures and any other condition that leaves the container in
// a state this driver cannot reason about (a failed mmap, a failed
// ftruncate) are fatal: the process logs and exits, matching the original
// design's ONERROR policy for corruption it has no safe way to recover
// from.
func Open(filename string, numBlocks int) (*Device, error) {
	if numBlocks <= 0 {
		return nil, fmt.Errorf("blockdev: numBlocks must be positive, got %d", numBlocks)
	}

	metaSize := metadataSize(numBlocks)

	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	isNew := err == nil
	if err != nil {
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("blockdev: create %s: %w", filename, err)
		}
		file, err = os.OpenFile(filename, os.O_RDWR, 0o666)
		if err != nil {
			return nil, fmt.Errorf("blockdev: open %s: %w", filename, err)
		}
	}

	totalSize := metaSize + int64(numBlocks)*BlockSize
	if isNew {
		if err := file.Truncate(totalSize); err != nil {
			file.Close()
			fatalf("ftruncate", logrus.Fields{"file": filename}, "blockdev: resize %s to %d: %v", filename, totalSize, err)
		}
	}

	meta, err := mmapMeta(file, metaSize)
	if err != nil {
		file.Close()
		fatalf("mmap", logrus.Fields{"file": filename}, "blockdev: mmap metadata of %s: %v", filename, err)
	}

	dev := &Device{
		file:     file,
		meta:     meta,
		metaSize: metaSize,
		path:     filename,
	}

	if isNew {
		dev.volumeID = uuid.New()
		dev.numBlocks = numBlocks
		h := DiskHeader{
			NumBlocks:     int32(numBlocks),
			FreeBlocks:    int32(numBlocks),
			BitmapEntries: int32(bitmapByteLen(numBlocks)),
			BitmapBlocks:  int32(numBlocks),
			VolumeID:      dev.volumeID,
		}
		h.encode(dev.meta[:diskHeaderSize])
		dev.bm = bitmap.New(dev.meta[diskHeaderSize:diskHeaderSize+bitmapByteLen(numBlocks)], numBlocks)
		log.WithFields(logrus.Fields{"file": filename, "numBlocks": numBlocks, "volume": dev.volumeID}).Debug("formatted new container")
		tagContainer(filename, dev.volumeID)
	} else {
		h := decodeDiskHeader(dev.meta[:diskHeaderSize])
		if int(h.NumBlocks) != numBlocks || int(h.BitmapBlocks) != numBlocks || h.FreeBlocks > h.NumBlocks || h.FreeBlocks < 0 {
			munmapMeta(meta)
			file.Close()
			fatalf("sanity-check", logrus.Fields{"file": filename}, "blockdev: container %s failed sanity check: %+v against numBlocks=%d", filename, h, numBlocks)
		}
		dev.numBlocks = numBlocks
		dev.volumeID = h.VolumeID
		dev.bm = bitmap.New(dev.meta[diskHeaderSize:diskHeaderSize+bitmapByteLen(numBlocks)], numBlocks)
		log.WithFields(logrus.Fields{"file": filename, "numBlocks": numBlocks, "free": h.FreeBlocks}).Debug("opened existing container")
	}

	return dev, nil
}

// NumBlocks returns the total number of data blocks in the container.
func (d *Device) NumBlocks() int { return d.numBlocks }

// FreeBlocks returns the authoritative free-block count from the header.
func (d *Device) FreeBlocks() int {
	return int(int32FromLE(d.meta[4:8]))
}

// VolumeID returns the container's identifying UUID, generated once at
// format time. It plays no role in any filesystem invariant.
func (d *Device) VolumeID() uuid.UUID { return d.volumeID }

func (d *Device) setFreeBlocks(v int32) {
	putInt32LE(d.meta[4:8], v)
}

func int32FromLE(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func putInt32LE(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

// ReadBlock reads BlockSize bytes from block n into dest, which must have
// length at least BlockSize. It fails if n is unallocated or out of range.
func (d *Device) ReadBlock(dest []byte, n int) error {
	status := d.bm.Get(n)
	switch status {
	case -1:
		return ErrOutOfRange
	case 0:
		return ErrUnallocated
	}
	return d.transfer(n, dest[:BlockSize], (*os.File).Read)
}

// WriteBlock writes BlockSize bytes from src to block n, allocating it in
// the bitmap (decrementing FreeBlocks if it was not already allocated).
func (d *Device) WriteBlock(src []byte, n int) error {
	status := d.bm.Get(n)
	if status == -1 {
		return ErrOutOfRange
	}
	if err := d.transfer(n, src[:BlockSize], (*os.File).Write); err != nil {
		return err
	}
	if status == 0 {
		d.setFreeBlocks(int32FromLE(d.meta[4:8]) - 1)
	}
	d.bm.Set(n, 1)
	return nil
}

// FreeBlock clears block n's allocation bit, incrementing FreeBlocks if it
// was previously set.
func (d *Device) FreeBlock(n int) error {
	status := d.bm.Get(n)
	if status == -1 {
		return ErrOutOfRange
	}
	d.bm.Set(n, 0)
	if status == 1 {
		d.setFreeBlocks(int32FromLE(d.meta[4:8]) + 1)
	}
	return nil
}

// GetFreeBlock returns the lowest free block index >= start, or -1 if none.
func (d *Device) GetFreeBlock(start int) int {
	return d.bm.Find(start, 0)
}

// Flush durably syncs the header and bitmap to the backing file via msync.
func (d *Device) Flush() error {
	if err := msyncMeta(d.meta); err != nil {
		fatalf("msync", logrus.Fields{"file": d.path}, "blockdev: msync %s: %v", d.path, err)
	}
	return nil
}

// Close unmaps the metadata region and closes the backing file.
func (d *Device) Close() error {
	if err := munmapMeta(d.meta); err != nil {
		return fmt.Errorf("blockdev: munmap %s: %w", d.path, err)
	}
	return d.file.Close()
}

func (d *Device) transfer(n int, buf []byte, op func(*os.File, []byte) (int, error)) error {
	if n < 0 || n >= d.numBlocks {
		return ErrOutOfRange
	}
	off := d.metaSize + int64(n)*BlockSize
	if _, err := d.file.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek block %d: %v", ErrIO, n, err)
	}
	remaining := buf
	for len(remaining) > 0 {
		written, err := op(d.file, remaining)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				continue
			}
			return fmt.Errorf("%w: block %d: %v", ErrIO, n, err)
		}
		remaining = remaining[written:]
	}
	return nil
}
