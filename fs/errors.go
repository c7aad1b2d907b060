package fs

import "errors"

var (
	// ErrNotFound is returned when a name does not exist in a directory.
	ErrNotFound = errors.New("simplefs: not found")
	// ErrAlreadyExists is returned on a duplicate name in CreateFile/MkDir.
	ErrAlreadyExists = errors.New("simplefs: already exists")
	// ErrNameTooLong is returned when a name's length is >= MaxFilenameLen.
	ErrNameTooLong = errors.New("simplefs: name too long")
	// ErrNoSpace is returned when the device has no free blocks left.
	ErrNoSpace = errors.New("simplefs: no space left on device")
	// ErrOutOfRange is returned by Seek for an out-of-bounds position.
	ErrOutOfRange = errors.New("simplefs: position out of range")
	// ErrIO wraps a lower-level block device failure or a violated chain
	// invariant discovered while reading or seeking.
	ErrIO = errors.New("simplefs: I/O error")
	// ErrNotADirectory is returned by ChangeDir when the named entry exists
	// but is a file.
	ErrNotADirectory = errors.New("simplefs: not a directory")
)
