package fs

import (
	"errors"
	"fmt"

	"github.com/sfsgo/simplefs/blockdev"
)

// DirectoryHandle is an open directory: its own head block plus the
// device it lives on. ChangeDir("..") re-derives the parent from the
// head block's own fcb.directoryBlock rather than caching it, so a
// handle never goes stale if the parent is concurrently modified.
type DirectoryHandle struct {
	dev  *blockdev.Device
	head *firstDirectoryBlock
}

func allocBlock(dev *blockdev.Device) (int, error) {
	idx := dev.GetFreeBlock(0)
	if idx < 0 {
		return -1, ErrNoSpace
	}
	return idx, nil
}

func validateName(name string) error {
	if len(name) == 0 || len(name) >= MaxFilenameLen {
		return ErrNameTooLong
	}
	return nil
}

// find looks up name among d's children, returning the decoded header+FCB
// prefix and the block index it lives at.
func (d *DirectoryHandle) find(name string) (entryHead, int32, error) {
	it := NewFileIterator(d)
	for {
		idx, err := it.NextIdx()
		if errors.Is(err, errIterDone) {
			return entryHead{}, -1, ErrNotFound
		}
		if err != nil {
			return entryHead{}, -1, err
		}
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(idx)); err != nil {
			return entryHead{}, -1, fmt.Errorf("%w: reading child %d: %v", ErrIO, idx, err)
		}
		eh := decodeEntryHead(buf)
		if eh.fcb.name == name {
			return eh, idx, nil
		}
	}
}

// newDirBlock appends a fresh, empty continuation block to d's chain,
// linking it in just before the head (the chain is circular: head's
// previousBlock is always the tail).
func (d *DirectoryHandle) newDirBlock() (int32, *directoryBlock, error) {
	idx, err := allocBlock(d.dev)
	if err != nil {
		return -1, nil, err
	}

	tailIdx := d.head.header.previousBlock
	tailBuf := make([]byte, blockdev.BlockSize)
	if err := d.dev.ReadBlock(tailBuf, int(tailIdx)); err != nil {
		return -1, nil, fmt.Errorf("%w: reading directory tail %d: %v", ErrIO, tailIdx, err)
	}

	nb := &directoryBlock{header: blockHeader{previousBlock: tailIdx, nextBlock: d.head.fcb.blockInDisk, blockInFile: decodeBlockHeader(tailBuf).blockInFile + 1}}

	if tailIdx == d.head.fcb.blockInDisk {
		d.head.header.nextBlock = int32(idx)
		d.head.header.previousBlock = int32(idx)
		if err := d.dev.WriteBlock(d.head.encode(), int(d.head.fcb.blockInDisk)); err != nil {
			return -1, nil, fmt.Errorf("%w: updating directory head %v", ErrIO, err)
		}
	} else {
		tail := decodeDirectoryBlock(tailBuf)
		tail.header.nextBlock = int32(idx)
		if err := d.dev.WriteBlock(tail.encode(), int(tailIdx)); err != nil {
			return -1, nil, fmt.Errorf("%w: updating directory tail %v", ErrIO, err)
		}
		d.head.header.previousBlock = int32(idx)
		if err := d.dev.WriteBlock(d.head.encode(), int(d.head.fcb.blockInDisk)); err != nil {
			return -1, nil, fmt.Errorf("%w: updating directory head %v", ErrIO, err)
		}
	}

	if err := d.dev.WriteBlock(nb.encode(), idx); err != nil {
		return -1, nil, fmt.Errorf("%w: writing new directory block %v", ErrIO, err)
	}
	return int32(idx), nb, nil
}

// addToDirectory appends childIdx as a new child of d, growing the chain
// with a continuation block when every existing slot is full.
func (d *DirectoryHandle) addToDirectory(childIdx int32) error {
	n := d.head.numEntries
	if n < FilesInFirstDB {
		d.head.fileBlocks[n] = childIdx
		d.head.numEntries++
		return d.dev.WriteBlock(d.head.encode(), int(d.head.fcb.blockInDisk))
	}

	rel := (n - FilesInFirstDB) % FilesInDB
	if rel == 0 {
		dbIdx, db, err := d.newDirBlock()
		if err != nil {
			return err
		}
		db.fileBlocks[0] = childIdx
		if err := d.dev.WriteBlock(db.encode(), int(dbIdx)); err != nil {
			return fmt.Errorf("%w: writing directory block %v", ErrIO, err)
		}
		d.head.fcb.sizeInBlocks++
	} else {
		tailIdx := d.head.header.previousBlock
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(tailIdx)); err != nil {
			return fmt.Errorf("%w: reading directory tail %d: %v", ErrIO, tailIdx, err)
		}
		db := decodeDirectoryBlock(buf)
		db.fileBlocks[rel] = childIdx
		if err := d.dev.WriteBlock(db.encode(), int(tailIdx)); err != nil {
			return fmt.Errorf("%w: writing directory tail %v", ErrIO, err)
		}
	}

	d.head.numEntries++
	return d.dev.WriteBlock(d.head.encode(), int(d.head.fcb.blockInDisk))
}

// MkDir creates a new, empty subdirectory named name inside d.
func (d *DirectoryHandle) MkDir(name string) (*DirectoryHandle, error) {
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

	nd := &firstDirectoryBlock{
		header: blockHeader{previousBlock: int32(idx), nextBlock: int32(idx), blockInFile: 0},
		fcb: fcb{
			directoryBlock: d.head.fcb.blockInDisk,
			blockInDisk:    int32(idx),
			name:           name,
			sizeInBytes:    0,
			sizeInBlocks:   1,
			isDir:          true,
		},
	}
	if err := d.dev.WriteBlock(nd.encode(), idx); err != nil {
		return nil, fmt.Errorf("%w: writing new directory %v", ErrIO, err)
	}
	if err := d.addToDirectory(int32(idx)); err != nil {
		return nil, err
	}

	return &DirectoryHandle{dev: d.dev, head: nd}, nil
}

// ReadDir returns the names and isDir flags of d's immediate children, in
// iteration order.
func (d *DirectoryHandle) ReadDir() ([]DirEntry, error) {
	it := NewFileIterator(d)
	entries := make([]DirEntry, 0, d.head.numEntries)
	for {
		eh, err := it.Next()
		if errors.Is(err, errIterDone) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{Name: eh.fcb.name, IsDir: eh.fcb.isDir, SizeInBytes: eh.fcb.sizeInBytes})
	}
}

// DirEntry describes one child returned by ReadDir.
type DirEntry struct {
	Name        string
	IsDir       bool
	SizeInBytes int32
}

// ChangeDir resolves name against d and returns a handle to the target
// directory. The special names ".", ".." and "/" (the root) are
// recognized; ".." at the root is ErrNotFound.
func (d *DirectoryHandle) ChangeDir(name string) (*DirectoryHandle, error) {
	switch name {
	case ".":
		return d, nil
	case "/":
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, rootBlock); err != nil {
			return nil, fmt.Errorf("%w: reading root %d: %v", ErrIO, rootBlock, err)
		}
		return &DirectoryHandle{dev: d.dev, head: decodeFirstDirectoryBlock(buf)}, nil
	case "..":
		if d.head.fcb.directoryBlock == -1 {
			return nil, ErrNotFound
		}
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(d.head.fcb.directoryBlock)); err != nil {
			return nil, fmt.Errorf("%w: reading parent %d: %v", ErrIO, d.head.fcb.directoryBlock, err)
		}
		return &DirectoryHandle{dev: d.dev, head: decodeFirstDirectoryBlock(buf)}, nil
	}

	eh, idx, err := d.find(name)
	if err != nil {
		return nil, err
	}
	if !eh.fcb.isDir {
		return nil, ErrNotADirectory
	}
	buf := make([]byte, blockdev.BlockSize)
	if err := d.dev.ReadBlock(buf, int(idx)); err != nil {
		return nil, fmt.Errorf("%w: reading directory %d: %v", ErrIO, idx, err)
	}
	return &DirectoryHandle{dev: d.dev, head: decodeFirstDirectoryBlock(buf)}, nil
}

// Remove deletes the child named name from d: its full block chain (and,
// recursively, the contents of a subdirectory) is freed, and its slot is
// compacted out of d's child list.
func (d *DirectoryHandle) Remove(name string) error {
	eh, idx, err := d.find(name)
	if err != nil {
		return err
	}

	if eh.fcb.isDir {
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(idx)); err != nil {
			return fmt.Errorf("%w: reading directory %d: %v", ErrIO, idx, err)
		}
		child := &DirectoryHandle{dev: d.dev, head: decodeFirstDirectoryBlock(buf)}
		if err := child.removeContents(); err != nil {
			return err
		}
	}

	if err := d.removeChainBlocks(idx); err != nil {
		return err
	}

	return d.removeSlot(idx)
}

// removeContents frees every child of d (recursively for subdirectories).
// d's own chain and its slot in its parent are left to the caller.
func (d *DirectoryHandle) removeContents() error {
	it := NewFileIterator(d)
	for {
		idx, err := it.NextIdx()
		if errors.Is(err, errIterDone) {
			break
		}
		if err != nil {
			return err
		}

		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(idx)); err != nil {
			return fmt.Errorf("%w: reading child %d: %v", ErrIO, idx, err)
		}
		if decodeEntryHead(buf).fcb.isDir {
			sub := &DirectoryHandle{dev: d.dev, head: decodeFirstDirectoryBlock(buf)}
			if err := sub.removeContents(); err != nil {
				return err
			}
		}
		if err := d.removeChainBlocks(idx); err != nil {
			return err
		}
	}

	return nil
}

// freeOwnChain frees every block of d's own chain (head plus continuation
// blocks), without touching the parent's child list.
func (d *DirectoryHandle) freeOwnChain() error {
	cur := d.head.fcb.blockInDisk
	head := cur
	for {
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(cur)); err != nil {
			return fmt.Errorf("%w: reading directory block %d: %v", ErrIO, cur, err)
		}
		next := decodeBlockHeader(buf).nextBlock
		if err := d.dev.FreeBlock(int(cur)); err != nil {
			return fmt.Errorf("%w: freeing directory block %d: %v", ErrIO, cur, err)
		}
		if next == head {
			return nil
		}
		cur = next
	}
}

// removeChainBlocks frees every block belonging to the entity whose head
// block is at idx: a file's data chain, or a directory's own chain (its
// contents must already have been removed by the caller).
func (d *DirectoryHandle) removeChainBlocks(idx int32) error {
	cur := idx
	head := idx
	for {
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(cur)); err != nil {
			return fmt.Errorf("%w: reading block %d: %v", ErrIO, cur, err)
		}
		next := decodeBlockHeader(buf).nextBlock
		if err := d.dev.FreeBlock(int(cur)); err != nil {
			return fmt.Errorf("%w: freeing block %d: %v", ErrIO, cur, err)
		}
		if next == head {
			return nil
		}
		cur = next
	}
}

// slotAt returns the child block index stored at logical position pos.
func (d *DirectoryHandle) slotAt(pos int32) (int32, error) {
	if pos < FilesInFirstDB {
		return d.head.fileBlocks[pos], nil
	}
	blockNum := (pos - FilesInFirstDB) / FilesInDB
	rel := (pos - FilesInFirstDB) % FilesInDB
	cur := d.head.header.nextBlock
	for i := int32(0); i < blockNum; i++ {
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(cur)); err != nil {
			return -1, fmt.Errorf("%w: reading directory continuation %d: %v", ErrIO, cur, err)
		}
		cur = decodeBlockHeader(buf).nextBlock
	}
	buf := make([]byte, blockdev.BlockSize)
	if err := d.dev.ReadBlock(buf, int(cur)); err != nil {
		return -1, fmt.Errorf("%w: reading directory continuation %d: %v", ErrIO, cur, err)
	}
	return decodeDirectoryBlock(buf).fileBlocks[rel], nil
}

// setSlotAt overwrites the child block index stored at logical position
// pos with val.
func (d *DirectoryHandle) setSlotAt(pos, val int32) error {
	if pos < FilesInFirstDB {
		d.head.fileBlocks[pos] = val
		return d.dev.WriteBlock(d.head.encode(), int(d.head.fcb.blockInDisk))
	}
	blockNum := (pos - FilesInFirstDB) / FilesInDB
	rel := (pos - FilesInFirstDB) % FilesInDB
	cur := d.head.header.nextBlock
	for i := int32(0); i < blockNum; i++ {
		buf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(buf, int(cur)); err != nil {
			return fmt.Errorf("%w: reading directory continuation %d: %v", ErrIO, cur, err)
		}
		cur = decodeBlockHeader(buf).nextBlock
	}
	buf := make([]byte, blockdev.BlockSize)
	if err := d.dev.ReadBlock(buf, int(cur)); err != nil {
		return fmt.Errorf("%w: reading directory continuation %d: %v", ErrIO, cur, err)
	}
	db := decodeDirectoryBlock(buf)
	db.fileBlocks[rel] = val
	return d.dev.WriteBlock(db.encode(), int(cur))
}

// removeSlot compacts idx out of d's child list: the last occupied slot is
// moved into idx's place, and if that empties the last continuation block,
// the block is unlinked and freed.
func (d *DirectoryHandle) removeSlot(idx int32) error {
	last := d.head.numEntries - 1

	foundAt := int32(-1)
	for pos := int32(0); pos <= last; pos++ {
		v, err := d.slotAt(pos)
		if err != nil {
			return err
		}
		if v == idx {
			foundAt = pos
			break
		}
	}
	if foundAt < 0 {
		return fmt.Errorf("%w: slot for block %d not found during removal", ErrIO, idx)
	}

	if foundAt != last {
		lastVal, err := d.slotAt(last)
		if err != nil {
			return err
		}
		if err := d.setSlotAt(foundAt, lastVal); err != nil {
			return err
		}
	}

	d.head.numEntries--

	if last >= FilesInFirstDB {
		relInLast := (last - FilesInFirstDB) % FilesInDB
		if relInLast == 0 {
			if err := d.dropTailContinuationBlock(); err != nil {
				return err
			}
		}
	}

	return d.dev.WriteBlock(d.head.encode(), int(d.head.fcb.blockInDisk))
}

// dropTailContinuationBlock unlinks and frees d's tail continuation block,
// now that its single slot has been vacated.
func (d *DirectoryHandle) dropTailContinuationBlock() error {
	tailIdx := d.head.header.previousBlock
	buf := make([]byte, blockdev.BlockSize)
	if err := d.dev.ReadBlock(buf, int(tailIdx)); err != nil {
		return fmt.Errorf("%w: reading directory tail %d: %v", ErrIO, tailIdx, err)
	}
	tail := decodeDirectoryBlock(buf)
	prevIdx := tail.header.previousBlock

	if prevIdx == d.head.fcb.blockInDisk {
		d.head.header.previousBlock = d.head.fcb.blockInDisk
		d.head.header.nextBlock = d.head.fcb.blockInDisk
	} else {
		pbuf := make([]byte, blockdev.BlockSize)
		if err := d.dev.ReadBlock(pbuf, int(prevIdx)); err != nil {
			return fmt.Errorf("%w: reading directory block %d: %v", ErrIO, prevIdx, err)
		}
		prev := decodeDirectoryBlock(pbuf)
		prev.header.nextBlock = d.head.fcb.blockInDisk
		if err := d.dev.WriteBlock(prev.encode(), int(prevIdx)); err != nil {
			return fmt.Errorf("%w: updating directory block %v", ErrIO, err)
		}
		d.head.header.previousBlock = prevIdx
	}

	if err := d.dev.FreeBlock(int(tailIdx)); err != nil {
		return fmt.Errorf("%w: freeing directory tail %d: %v", ErrIO, tailIdx, err)
	}
	d.head.fcb.sizeInBlocks--
	return nil
}
