package fs

import (
	"errors"
	"fmt"

	"github.com/sfsgo/simplefs/blockdev"
)

// FileHandle is an open file: the device it lives on, its head block, and
// a byte-offset cursor. Every read/write resolves the cursor to a
// (blockInFile, offsetInBlock) pair and walks the chain from the head on
// demand; nothing about chain position is cached across calls.
type FileHandle struct {
	dev  *blockdev.Device
	head *firstFileBlock
	pos  int64 // current byte offset, 0 <= pos <= sizeInBytes
}

// CreateFile creates an empty file named name inside d and returns a
// handle to it, open for reading and writing at offset 0.
func (d *DirectoryHandle) CreateFile(name string) (*FileHandle, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, _, err := d.find(name); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	idx, err := allocBlock(d.dev)
	if err != nil {
		return nil, err
	}

	head := &firstFileBlock{
		header: blockHeader{previousBlock: int32(idx), nextBlock: int32(idx), blockInFile: 0},
		fcb: fcb{
			directoryBlock: d.head.fcb.blockInDisk,
			blockInDisk:    int32(idx),
			name:           name,
			sizeInBytes:    0,
			sizeInBlocks:   1,
			isDir:          false,
		},
	}
	if err := d.dev.WriteBlock(head.encode(), idx); err != nil {
		return nil, fmt.Errorf("%w: writing new file %v", ErrIO, err)
	}
	if err := d.addToDirectory(int32(idx)); err != nil {
		return nil, err
	}

	return &FileHandle{dev: d.dev, head: head}, nil
}

// OpenFile opens the existing file named name inside d, positioned at
// offset 0.
func (d *DirectoryHandle) OpenFile(name string) (*FileHandle, error) {
	eh, idx, err := d.find(name)
	if err != nil {
		return nil, err
	}
	if eh.fcb.isDir {
		return nil, fmt.Errorf("%w: %q is a directory", ErrIO, name)
	}
	buf := make([]byte, blockdev.BlockSize)
	if err := d.dev.ReadBlock(buf, int(idx)); err != nil {
		return nil, fmt.Errorf("%w: reading file %d: %v", ErrIO, idx, err)
	}
	return &FileHandle{dev: d.dev, head: decodeFirstFileBlock(buf)}, nil
}

// Close has no in-memory state to flush back (every mutating operation
// writes through immediately); it exists to mirror the resource-lifetime
// shape of the original design and to give callers a place to release a
// handle.
func (f *FileHandle) Close() error { return nil }

// CloseDir is the directory equivalent of Close.
func (d *DirectoryHandle) CloseDir() error { return nil }

// Size returns the file's current size in bytes.
func (f *FileHandle) Size() int64 { return int64(f.head.fcb.sizeInBytes) }

// dataCapacity returns the number of usable data bytes in block index
// blockInFile of the file (the head block carries less payload than a
// continuation block, because it also carries the header and FCB).
func dataCapacity(blockInFile int32) int32 {
	if blockInFile == 0 {
		return BytesInFirstFB
	}
	return BytesInFB
}

// locate returns the (blockInFile, offsetInBlock) pair that byte offset
// pos resolves to.
func locate(pos int64) (int32, int32) {
	if pos < int64(BytesInFirstFB) {
		return 0, int32(pos)
	}
	rem := pos - int64(BytesInFirstFB)
	return 1 + int32(rem/int64(BytesInFB)), int32(rem % int64(BytesInFB))
}

// walkTo walks the chain from the head to logical block blockInFile and
// returns its disk index. When grow is true and the chain ends before
// reaching blockInFile, a new tail block is allocated and linked in;
// otherwise running off the end of the chain before the declared size is
// reached is ErrIO (on-disk corruption).
func (f *FileHandle) walkTo(blockInFile int32, grow bool) (int32, error) {
	cur := f.head.fcb.blockInDisk
	for i := int32(0); i < blockInFile; i++ {
		buf := make([]byte, blockdev.BlockSize)
		if err := f.dev.ReadBlock(buf, int(cur)); err != nil {
			return -1, fmt.Errorf("%w: reading file block %d: %v", ErrIO, cur, err)
		}
		next := decodeBlockHeader(buf).nextBlock
		if next == f.head.fcb.blockInDisk {
			if !grow {
				return -1, fmt.Errorf("%w: file chain ends before declared size", ErrIO)
			}
			newIdx, err := f.appendBlock(cur, i+1)
			if err != nil {
				return -1, err
			}
			next = newIdx
		}
		cur = next
	}
	return cur, nil
}

// appendBlock allocates a new block, links it after tailIdx (the chain's
// current tail), and returns its disk index.
func (f *FileHandle) appendBlock(tailIdx, blockInFile int32) (int32, error) {
	newIdx, err := allocBlock(f.dev)
	if err != nil {
		return -1, err
	}

	nb := &fileBlock{header: blockHeader{previousBlock: tailIdx, nextBlock: f.head.fcb.blockInDisk, blockInFile: blockInFile}}
	if err := f.dev.WriteBlock(nb.encode(), newIdx); err != nil {
		return -1, fmt.Errorf("%w: writing new file block %v", ErrIO, err)
	}

	if tailIdx == f.head.fcb.blockInDisk {
		f.head.header.nextBlock = int32(newIdx)
	} else {
		buf := make([]byte, blockdev.BlockSize)
		if err := f.dev.ReadBlock(buf, int(tailIdx)); err != nil {
			return -1, fmt.Errorf("%w: reading file tail %d: %v", ErrIO, tailIdx, err)
		}
		tail := decodeFileBlock(buf)
		tail.header.nextBlock = int32(newIdx)
		if err := f.dev.WriteBlock(tail.encode(), int(tailIdx)); err != nil {
			return -1, fmt.Errorf("%w: updating file tail %v", ErrIO, err)
		}
	}

	f.head.header.previousBlock = int32(newIdx)
	f.head.fcb.sizeInBlocks++
	if err := f.flushHead(); err != nil {
		return -1, err
	}
	return int32(newIdx), nil
}

func (f *FileHandle) readBlockData(idx int32) ([]byte, error) {
	if idx == f.head.fcb.blockInDisk {
		return f.head.data[:], nil
	}
	buf := make([]byte, blockdev.BlockSize)
	if err := f.dev.ReadBlock(buf, int(idx)); err != nil {
		return nil, fmt.Errorf("%w: reading file block %d: %v", ErrIO, idx, err)
	}
	return decodeFileBlock(buf).data[:], nil
}

func (f *FileHandle) writeBlockData(idx int32, off int32, p []byte) error {
	if idx == f.head.fcb.blockInDisk {
		copy(f.head.data[off:], p)
		return f.flushHead()
	}
	buf := make([]byte, blockdev.BlockSize)
	if err := f.dev.ReadBlock(buf, int(idx)); err != nil {
		return fmt.Errorf("%w: reading file block %d: %v", ErrIO, idx, err)
	}
	blk := decodeFileBlock(buf)
	copy(blk.data[off:], p)
	return f.dev.WriteBlock(blk.encode(), int(idx))
}

func (f *FileHandle) flushHead() error {
	return f.dev.WriteBlock(f.head.encode(), int(f.head.fcb.blockInDisk))
}

// Write writes len(p) bytes starting at the handle's current position,
// extending the file (allocating new blocks as needed) past its current
// end if necessary, and returns the number of bytes written, len(p). If
// the device runs out of space (or a block write fails) partway through,
// Write returns 0 and the error, with no partial count; bytes already
// written, and the blocks already linked in to hold them, are not rolled
// back, and the file size covers them.
func (f *FileHandle) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		blockInFile, offInBlock := locate(f.pos)
		idx, err := f.walkTo(blockInFile, true)
		if err != nil {
			return 0, err
		}

		capacity := dataCapacity(blockInFile)
		n := int32(len(p) - written)
		if room := capacity - offInBlock; n > room {
			n = room
		}

		if err := f.writeBlockData(idx, offInBlock, p[written:written+int(n)]); err != nil {
			return 0, err
		}

		written += int(n)
		f.pos += int64(n)
		if f.pos > int64(f.head.fcb.sizeInBytes) {
			f.head.fcb.sizeInBytes = int32(f.pos)
			if err := f.flushHead(); err != nil {
				return 0, err
			}
		}
	}
	return written, nil
}

// Read reads up to len(p) bytes starting at the handle's current
// position, returning the number of bytes read. Fewer bytes than
// requested means EOF was reached; it is not itself an error. A broken
// chain (a missing block before sizeInBytes is reached) is ErrIO: it can
// only mean on-disk corruption, since sizeInBlocks and sizeInBytes are
// otherwise kept consistent by every mutating operation.
func (f *FileHandle) Read(p []byte) (int, error) {
	remaining := int64(f.head.fcb.sizeInBytes) - f.pos
	if remaining <= 0 {
		return 0, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	read := 0
	for read < len(p) {
		blockInFile, offInBlock := locate(f.pos)
		idx, err := f.walkTo(blockInFile, false)
		if err != nil {
			return read, err
		}
		data, err := f.readBlockData(idx)
		if err != nil {
			return read, err
		}

		capacity := dataCapacity(blockInFile)
		n := int32(len(p) - read)
		if avail := capacity - offInBlock; n > avail {
			n = avail
		}

		copy(p[read:read+int(n)], data[offInBlock:offInBlock+n])
		read += int(n)
		f.pos += int64(n)
	}
	return read, nil
}

// Seek moves the handle's cursor to offset bytes from the start of the
// file and returns the signed distance moved, posNew - posOld (negative
// when seeking backward). Seeking past the current end of file is out of
// range; callers must Write to extend a file first.
func (f *FileHandle) Seek(offset int64) (int64, error) {
	posOld := f.pos
	if offset < 0 || offset > int64(f.head.fcb.sizeInBytes) {
		return 0, ErrOutOfRange
	}
	if offset > 0 {
		blockInFile, _ := locate(offset - 1)
		if _, err := f.walkTo(blockInFile, false); err != nil {
			return 0, err
		}
	}
	f.pos = offset
	return f.pos - posOld, nil
}
