//go:build unix

package blockdev

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapMeta(file *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmapMeta(b []byte) error {
	return unix.Munmap(b)
}

func msyncMeta(b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}
