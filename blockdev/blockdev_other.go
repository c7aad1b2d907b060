//go:build !unix

package blockdev

import (
	"errors"
	"os"
)

var errUnsupportedPlatform = errors.New("blockdev: memory-mapped containers are only supported on unix-like platforms")

func mmapMeta(file *os.File, size int64) ([]byte, error) {
	return nil, errUnsupportedPlatform
}

func munmapMeta(b []byte) error {
	return errUnsupportedPlatform
}

func msyncMeta(b []byte) error {
	return errUnsupportedPlatform
}
