// Package snapshot streams a compressed point-in-time image of a volume's
// allocated blocks to an io.Writer, and restores one from an io.Reader,
// without ever copying the (mostly unallocated) container file as-is.
//
// A snapshot only ever talks to a *blockdev.Device through its public
// block-level API (Open/ReadBlock/WriteBlock/NumBlocks/Close): it knows
// nothing about directories or files.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/sfsgo/simplefs/blockdev"
)

var log = logrus.WithField("component", "snapshot")

// Codec selects the compressor used to frame a snapshot stream.
type Codec int

const (
	// LZ4 favors export/import speed over ratio.
	LZ4 Codec = iota
	// XZ favors ratio over speed, for archival snapshots.
	XZ
)

const (
	magic         = "SFSSNAP1"
	recordHeader  = 4 // block index, little-endian uint32
	fullBlockSize = recordHeader + blockdev.BlockSize
)

func newWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case LZ4:
		return lz4.NewWriter(w), nil
	case XZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("snapshot: creating xz writer: %w", err)
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("snapshot: unknown codec %d", codec)
	}
}

func newReader(r io.Reader, codec Codec) (io.Reader, error) {
	switch codec {
	case LZ4:
		return lz4.NewReader(r), nil
	case XZ:
		return xz.NewReader(r)
	default:
		return nil, fmt.Errorf("snapshot: unknown codec %d", codec)
	}
}

// Export walks every allocated block of dev in ascending order and writes
// it, framed with its block index, to a compressed stream on w. Unallocated
// blocks are skipped entirely, so a mostly-empty volume produces a small
// snapshot.
func Export(dev *blockdev.Device, w io.Writer, codec Codec) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return fmt.Errorf("snapshot: writing header: %w", err)
	}
	var hdr [9]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(dev.NumBlocks()))
	hdr[4] = byte(codec)
	binary.LittleEndian.PutUint32(hdr[5:9], 0)
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("snapshot: writing header: %w", err)
	}

	cw, err := newWriter(w, codec)
	if err != nil {
		return err
	}

	written := 0
	buf := make([]byte, blockdev.BlockSize)
	rec := make([]byte, fullBlockSize)
	for i := 0; i < dev.NumBlocks(); i++ {
		if err := dev.ReadBlock(buf, i); err != nil {
			continue // unallocated, or unreadable: the block is left out of the snapshot either way
		}
		binary.LittleEndian.PutUint32(rec[0:4], uint32(i))
		copy(rec[recordHeader:], buf)
		if _, err := cw.Write(rec); err != nil {
			cw.Close()
			return fmt.Errorf("snapshot: writing block %d: %w", i, err)
		}
		written++
	}

	if err := cw.Close(); err != nil {
		return fmt.Errorf("snapshot: finalizing stream: %w", err)
	}
	log.WithFields(logrus.Fields{"blocks": written, "total": dev.NumBlocks()}).Debug("exported snapshot")
	return nil
}

// Import creates filename as a fresh container sized from the snapshot's
// header, then replays every framed block from r into it.
func Import(r io.Reader, filename string) (*blockdev.Device, error) {
	var magicBuf [8]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		return nil, fmt.Errorf("snapshot: reading header: %w", err)
	}
	if string(magicBuf[:]) != magic {
		return nil, fmt.Errorf("snapshot: %q is not a snapshot stream", filename)
	}

	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("snapshot: reading header: %w", err)
	}
	numBlocks := int(binary.LittleEndian.Uint32(hdr[0:4]))
	codec := Codec(hdr[4])

	cr, err := newReader(r, codec)
	if err != nil {
		return nil, err
	}

	dev, err := blockdev.Open(filename, numBlocks)
	if err != nil {
		return nil, fmt.Errorf("snapshot: creating %s: %w", filename, err)
	}

	rec := make([]byte, fullBlockSize)
	restored := 0
	for {
		_, err := io.ReadFull(cr, rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("snapshot: reading block record: %w", err)
		}
		idx := int(binary.LittleEndian.Uint32(rec[0:4]))
		if err := dev.WriteBlock(rec[recordHeader:], idx); err != nil {
			dev.Close()
			return nil, fmt.Errorf("snapshot: restoring block %d: %w", idx, err)
		}
		restored++
	}

	log.WithFields(logrus.Fields{"blocks": restored, "total": numBlocks}).Debug("imported snapshot")
	return dev, nil
}
