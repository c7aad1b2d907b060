package fs

import (
	"bytes"
	"encoding/binary"

	"github.com/sfsgo/simplefs/blockdev"
)

// BlockSize is re-exported from blockdev for callers that only import fs.
const BlockSize = blockdev.BlockSize

// MaxFilenameLen is the maximum length, including the terminating NUL, of
// a name stored in a FileControlBlock.
const MaxFilenameLen = blockdev.MaxFilenameLen

const (
	blockHeaderSize = 4 + 4 + 4   // previousBlock, nextBlock, blockInFile
	fcbSize         = 4 + 4 + MaxFilenameLen + 4 + 4 + 4
	entryHeadSize   = blockHeaderSize + fcbSize
	dirFixedSize    = entryHeadSize + 4 // + numEntries
)

// BytesInFirstFB is the number of inline data bytes carried in a file's
// first block, alongside its header and FCB.
const BytesInFirstFB = BlockSize - entryHeadSize

// BytesInFB is the number of data bytes in a file continuation block.
const BytesInFB = BlockSize - blockHeaderSize

// FilesInFirstDB is the number of child block indices a directory's first
// block can hold alongside its header and FCB.
const FilesInFirstDB = (BlockSize - dirFixedSize) / 4

// FilesInDB is the number of child block indices a directory continuation
// block can hold.
const FilesInDB = (BlockSize - blockHeaderSize) / 4

// blockHeader is present at the start of every non-free block. Chains are
// circular doubly-linked: the head's previousBlock names the tail and the
// tail's nextBlock names the head.
type blockHeader struct {
	previousBlock int32
	nextBlock     int32
	blockInFile   int32
}

func (h blockHeader) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.previousBlock))
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.nextBlock))
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.blockInFile))
}

func decodeBlockHeader(b []byte) blockHeader {
	return blockHeader{
		previousBlock: int32(binary.LittleEndian.Uint32(b[0:4])),
		nextBlock:     int32(binary.LittleEndian.Uint32(b[4:8])),
		blockInFile:   int32(binary.LittleEndian.Uint32(b[8:12])),
	}
}

// fcb is the File Control Block embedded in every entity's first block.
type fcb struct {
	directoryBlock int32 // parent directory's first block; -1 for root
	blockInDisk    int32 // this entity's own head block index
	name           string
	sizeInBytes    int32
	sizeInBlocks   int32
	isDir          bool
}

func (f fcb) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(f.directoryBlock))
	binary.LittleEndian.PutUint32(b[4:8], uint32(f.blockInDisk))
	nameField := b[8 : 8+MaxFilenameLen]
	for i := range nameField {
		nameField[i] = 0
	}
	copy(nameField, f.name)
	off := 8 + MaxFilenameLen
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(f.sizeInBytes))
	binary.LittleEndian.PutUint32(b[off+4:off+8], uint32(f.sizeInBlocks))
	isDir := uint32(0)
	if f.isDir {
		isDir = 1
	}
	binary.LittleEndian.PutUint32(b[off+8:off+12], isDir)
}

func decodeFCB(b []byte) fcb {
	nameField := b[8 : 8+MaxFilenameLen]
	nulAt := bytes.IndexByte(nameField, 0)
	if nulAt < 0 {
		nulAt = len(nameField)
	}
	off := 8 + MaxFilenameLen
	return fcb{
		directoryBlock: int32(binary.LittleEndian.Uint32(b[0:4])),
		blockInDisk:    int32(binary.LittleEndian.Uint32(b[4:8])),
		name:           string(nameField[:nulAt]),
		sizeInBytes:    int32(binary.LittleEndian.Uint32(b[off : off+4])),
		sizeInBlocks:   int32(binary.LittleEndian.Uint32(b[off+4 : off+8])),
		isDir:          binary.LittleEndian.Uint32(b[off+8:off+12]) != 0,
	}
}

// entryHead is the header+FCB prefix shared by FirstFileBlock and
// FirstDirectoryBlock. Directory traversal only ever needs this prefix to
// decide whether a child is a file or a directory and to compare names, so
// FileIterator decodes only this much instead of the full typed block. See
// SPEC_FULL.md §9 on why this replaces the original's layout punning.
type entryHead struct {
	header blockHeader
	fcb    fcb
}

func decodeEntryHead(b []byte) entryHead {
	return entryHead{header: decodeBlockHeader(b), fcb: decodeFCB(b[blockHeaderSize:])}
}

// firstFileBlock is the head of a file's chain: header + FCB + inline data.
type firstFileBlock struct {
	header blockHeader
	fcb    fcb
	data   [BytesInFirstFB]byte
}

func (f *firstFileBlock) encode() []byte {
	b := make([]byte, BlockSize)
	f.header.encode(b)
	f.fcb.encode(b[blockHeaderSize:])
	copy(b[entryHeadSize:], f.data[:])
	return b
}

func decodeFirstFileBlock(b []byte) *firstFileBlock {
	f := &firstFileBlock{
		header: decodeBlockHeader(b),
		fcb:    decodeFCB(b[blockHeaderSize:]),
	}
	copy(f.data[:], b[entryHeadSize:])
	return f
}

// fileBlock is a file continuation block: header + raw data only.
type fileBlock struct {
	header blockHeader
	data   [BytesInFB]byte
}

func (f *fileBlock) encode() []byte {
	b := make([]byte, BlockSize)
	f.header.encode(b)
	copy(b[blockHeaderSize:], f.data[:])
	return b
}

func decodeFileBlock(b []byte) *fileBlock {
	f := &fileBlock{header: decodeBlockHeader(b)}
	copy(f.data[:], b[blockHeaderSize:])
	return f
}

// firstDirectoryBlock is the head of a directory's chain: header + FCB +
// entry count + the first FilesInFirstDB child block indices.
type firstDirectoryBlock struct {
	header     blockHeader
	fcb        fcb
	numEntries int32
	fileBlocks [FilesInFirstDB]int32
}

func (d *firstDirectoryBlock) encode() []byte {
	b := make([]byte, BlockSize)
	d.header.encode(b)
	d.fcb.encode(b[blockHeaderSize:])
	off := entryHeadSize
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(d.numEntries))
	off += 4
	for i, v := range d.fileBlocks {
		binary.LittleEndian.PutUint32(b[off+i*4:off+i*4+4], uint32(v))
	}
	return b
}

func decodeFirstDirectoryBlock(b []byte) *firstDirectoryBlock {
	d := &firstDirectoryBlock{
		header: decodeBlockHeader(b),
		fcb:    decodeFCB(b[blockHeaderSize:]),
	}
	off := entryHeadSize
	d.numEntries = int32(binary.LittleEndian.Uint32(b[off : off+4]))
	off += 4
	for i := range d.fileBlocks {
		d.fileBlocks[i] = int32(binary.LittleEndian.Uint32(b[off+i*4 : off+i*4+4]))
	}
	return d
}

// directoryBlock is a directory continuation block: header + a run of
// child block indices.
type directoryBlock struct {
	header     blockHeader
	fileBlocks [FilesInDB]int32
}

func (d *directoryBlock) encode() []byte {
	b := make([]byte, BlockSize)
	d.header.encode(b)
	off := blockHeaderSize
	for i, v := range d.fileBlocks {
		binary.LittleEndian.PutUint32(b[off+i*4:off+i*4+4], uint32(v))
	}
	return b
}

func decodeDirectoryBlock(b []byte) *directoryBlock {
	d := &directoryBlock{header: decodeBlockHeader(b)}
	off := blockHeaderSize
	for i := range d.fileBlocks {
		d.fileBlocks[i] = int32(binary.LittleEndian.Uint32(b[off+i*4 : off+i*4+4]))
	}
	return d
}
