package blockdev_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfsgo/simplefs/blockdev"
)

func TestOpenFormatsFreshContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, 1024)
	require.NoError(t, err)
	defer dev.Close()

	require.Equal(t, 1024, dev.NumBlocks())
	require.Equal(t, 1024, dev.FreeBlocks())
	require.NotEqual(t, [16]byte{}, [16]byte(dev.VolumeID()))
}

func TestWriteReadFreeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, 16)
	require.NoError(t, err)
	defer dev.Close()

	block := dev.GetFreeBlock(0)
	require.Equal(t, 0, block)

	payload := make([]byte, blockdev.BlockSize)
	copy(payload, "hello block")
	require.NoError(t, dev.WriteBlock(payload, block))
	require.Equal(t, 15, dev.FreeBlocks())

	out := make([]byte, blockdev.BlockSize)
	require.NoError(t, dev.ReadBlock(out, block))
	require.Equal(t, payload, out)

	require.NoError(t, dev.FreeBlock(block))
	require.Equal(t, 16, dev.FreeBlocks())
	require.ErrorIs(t, dev.ReadBlock(out, block), blockdev.ErrUnallocated)
}

func TestOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, 4)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, blockdev.BlockSize)
	require.ErrorIs(t, dev.ReadBlock(buf, 4), blockdev.ErrOutOfRange)
	require.ErrorIs(t, dev.WriteBlock(buf, -1), blockdev.ErrOutOfRange)
	require.ErrorIs(t, dev.FreeBlock(100), blockdev.ErrOutOfRange)
	require.Equal(t, -1, dev.GetFreeBlock(100))
}

func TestReopenExistingContainerPreservesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, 8)
	require.NoError(t, err)

	payload := make([]byte, blockdev.BlockSize)
	copy(payload, "persisted")
	require.NoError(t, dev.WriteBlock(payload, 0))
	require.NoError(t, dev.Flush())
	volumeID := dev.VolumeID()
	require.NoError(t, dev.Close())

	dev2, err := blockdev.Open(path, 8)
	require.NoError(t, err)
	defer dev2.Close()

	require.Equal(t, 7, dev2.FreeBlocks())
	require.Equal(t, volumeID, dev2.VolumeID())

	out := make([]byte, blockdev.BlockSize)
	require.NoError(t, dev2.ReadBlock(out, 0))
	require.Equal(t, payload, out)
}

func TestInfoReportsHostMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, 4)
	require.NoError(t, err)
	require.NoError(t, dev.Close())

	info, err := blockdev.Info(path)
	require.NoError(t, err)
	require.Greater(t, info.Size, int64(0))
}
