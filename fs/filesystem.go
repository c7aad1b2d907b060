// Package fs implements the directory/file entity model on top of a
// blockdev.Device: linked-block traversal, the two-tier directory
// representation, and every mutating operation (create, mkdir, read,
// write, seek, read-dir, change-dir, remove).
//
// The package is intentionally unaware of multi-component paths: every
// operation here takes a single name component, exactly as the original
// design specifies. Building a path walker on top of this is the job of
// an external caller (a shell, in the original design) and is out of
// scope here.
package fs

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sfsgo/simplefs/blockdev"
)

var log = logrus.WithField("component", "fs")

const rootBlock = 0

// Init reads block 0 of dev as the root directory, formatting a fresh
// filesystem first if the container is empty (block 0 unallocated).
func Init(dev *blockdev.Device) (*DirectoryHandle, error) {
	buf := make([]byte, blockdev.BlockSize)
	if err := dev.ReadBlock(buf, rootBlock); err != nil {
		log.Debug("root block unreadable, formatting")
		if err := Format(dev); err != nil {
			return nil, err
		}
		if err := dev.ReadBlock(buf, rootBlock); err != nil {
			return nil, fmt.Errorf("fs: read root block after format: %w", err)
		}
	}
	return &DirectoryHandle{dev: dev, head: decodeFirstDirectoryBlock(buf)}, nil
}

// Format wipes the allocation bitmap and writes a fresh, empty root
// directory at block 0.
func Format(dev *blockdev.Device) error {
	for i := 0; i < dev.NumBlocks(); i++ {
		if err := dev.FreeBlock(i); err != nil {
			return fmt.Errorf("fs: format: %w", err)
		}
	}

	root := &firstDirectoryBlock{
		header: blockHeader{previousBlock: rootBlock, nextBlock: rootBlock, blockInFile: 0},
		fcb: fcb{
			directoryBlock: -1,
			blockInDisk:    rootBlock,
			name:           "/",
			sizeInBytes:    0,
			sizeInBlocks:   1,
			isDir:          true,
		},
		numEntries: 0,
	}
	if err := dev.WriteBlock(root.encode(), rootBlock); err != nil {
		return fmt.Errorf("fs: format: write root: %w", err)
	}
	log.Debug("formatted filesystem")
	return nil
}
