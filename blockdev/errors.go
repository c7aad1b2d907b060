package blockdev

import "errors"

var (
	// ErrOutOfRange is returned when a block index is outside [0, NumBlocks).
	ErrOutOfRange = errors.New("blockdev: block index out of range")
	// ErrUnallocated is returned by ReadBlock when the requested block's bit is clear.
	ErrUnallocated = errors.New("blockdev: block is not allocated")
	// ErrIO is returned when a host file read or write failed hard.
	ErrIO = errors.New("blockdev: host I/O error")
	// ErrCorrupt names an existing container that fails its sanity checks.
	// Open does not return it: that condition is fatal (see Open).
	ErrCorrupt = errors.New("blockdev: container sanity check failed")
)
