package fs

import (
	"errors"
	"fmt"

	"github.com/sfsgo/simplefs/blockdev"
)

// errIterDone is the internal end-of-iteration sentinel for NextIdx; it
// never escapes the package.
var errIterDone = errors.New("fs: end of directory iteration")

// FileIterator scans a directory's children in logical order: the indices
// stored in the head block first, then each continuation block's indices
// in chain order.
type FileIterator struct {
	dev *blockdev.Device
	dir *DirectoryHandle

	pos          int32
	relativePos  int32 // -1 until a continuation block is loaded
	nextDirBlock int32
	db           *directoryBlock // most recently loaded continuation block
}

// NewFileIterator returns an iterator over d's children, positioned before
// the first entry.
func NewFileIterator(d *DirectoryHandle) *FileIterator {
	return &FileIterator{
		dev:          d.dev,
		dir:          d,
		pos:          -1,
		relativePos:  -1,
		nextDirBlock: d.head.header.nextBlock,
	}
}

// NextIdx advances the cursor and returns the next child's block index, or
// errIterDone when the directory is exhausted.
func (it *FileIterator) NextIdx() (int32, error) {
	it.pos++
	if it.pos == it.dir.head.numEntries {
		return -1, errIterDone
	}

	if it.pos < FilesInFirstDB {
		return it.dir.head.fileBlocks[it.pos], nil
	}

	if it.relativePos == -1 || it.relativePos == FilesInDB {
		buf := make([]byte, blockdev.BlockSize)
		if err := it.dev.ReadBlock(buf, int(it.nextDirBlock)); err != nil {
			return -1, fmt.Errorf("%w: reading directory continuation %d: %v", ErrIO, it.nextDirBlock, err)
		}
		it.db = decodeDirectoryBlock(buf)
		it.nextDirBlock = it.db.header.nextBlock
		it.relativePos = 0
	}

	idx := it.db.fileBlocks[it.relativePos]
	it.relativePos++
	return idx, nil
}

// Next advances the cursor and reads the next child's header+FCB prefix,
// or returns errIterDone when the directory is exhausted.
func (it *FileIterator) Next() (*entryHead, error) {
	idx, err := it.NextIdx()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, blockdev.BlockSize)
	if err := it.dev.ReadBlock(buf, int(idx)); err != nil {
		return nil, fmt.Errorf("%w: reading child block %d: %v", ErrIO, idx, err)
	}
	eh := decodeEntryHead(buf)
	return &eh, nil
}
