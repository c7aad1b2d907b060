package fs_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfsgo/simplefs/blockdev"
	"github.com/sfsgo/simplefs/fs"
)

func openDev(t *testing.T, numBlocks int) *blockdev.Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := blockdev.Open(path, numBlocks)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestInitFormatsEmptyContainer(t *testing.T) {
	dev := openDev(t, 64)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	entries, err := root.ReadDir()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	dev := openDev(t, 64)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	f, err := root.CreateFile("hello.txt")
	require.NoError(t, err)

	payload := []byte("hello, block filesystem")
	n, err := f.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, int64(len(payload)), f.Size())
	require.NoError(t, f.Close())

	f2, err := root.OpenFile("hello.txt")
	require.NoError(t, err)
	out := make([]byte, len(payload))
	n, err = f2.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestWriteSpanningMultipleBlocks(t *testing.T) {
	dev := openDev(t, 256)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	f, err := root.CreateFile("big.bin")
	require.NoError(t, err)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	n, err := f.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.NoError(t, f.Close())
	f2, err := root.OpenFile("big.bin")
	require.NoError(t, err)
	out := make([]byte, len(payload))
	n, err = f2.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestWriteInChunksThenReopenAndReread(t *testing.T) {
	dev := openDev(t, 256)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	f, err := root.CreateFile("chunked.bin")
	require.NoError(t, err)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i*7 + 3)
	}
	for off := 0; off < len(payload); off += 333 {
		end := off + 333
		if end > len(payload) {
			end = len(payload)
		}
		n, err := f.Write(payload[off:end])
		require.NoError(t, err)
		require.Equal(t, end-off, n)
	}
	require.NoError(t, f.Close())

	f2, err := root.OpenFile("chunked.bin")
	require.NoError(t, err)
	out := make([]byte, len(payload))
	n, err := f2.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

func TestSeekBackwardAndForward(t *testing.T) {
	dev := openDev(t, 64)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	f, err := root.CreateFile("seekable.bin")
	require.NoError(t, err)
	payload := []byte("0123456789abcdef")
	_, err = f.Write(payload)
	require.NoError(t, err)

	delta, err := f.Seek(0)
	require.NoError(t, err)
	require.Equal(t, -int64(len(payload)), delta)

	out := make([]byte, 4)
	n, err := f.Read(out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte("0123"), out)

	delta, err = f.Seek(int64(len(payload)))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload))-4, delta)
	n, err = f.Read(out)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	delta, err = f.Seek(int64(len(payload)) + 1)
	require.ErrorIs(t, err, fs.ErrOutOfRange)
	require.Equal(t, int64(0), delta)
}

func TestDirectoryNestingAndChangeDir(t *testing.T) {
	dev := openDev(t, 64)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	sub, err := root.MkDir("sub")
	require.NoError(t, err)

	here, err := sub.ChangeDir(".")
	require.NoError(t, err)
	require.Same(t, sub, here)

	back, err := sub.ChangeDir("..")
	require.NoError(t, err)
	entries, err := back.ReadDir()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "sub", entries[0].Name)
	require.True(t, entries[0].IsDir)

	_, err = root.ChangeDir("..")
	require.ErrorIs(t, err, fs.ErrNotFound)

	_, err = root.ChangeDir("nonexistent")
	require.ErrorIs(t, err, fs.ErrNotFound)

	_, err = sub.CreateFile("leaf.txt")
	require.NoError(t, err)
	_, err = root.ChangeDir("sub")
	require.NoError(t, err)
	_, err = root.MkDir("sub")
	require.ErrorIs(t, err, fs.ErrAlreadyExists)
}

func TestCreateFileRejectsDuplicateAndLongNames(t *testing.T) {
	dev := openDev(t, 64)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	_, err = root.CreateFile("dup.txt")
	require.NoError(t, err)
	_, err = root.CreateFile("dup.txt")
	require.ErrorIs(t, err, fs.ErrAlreadyExists)

	longName := make([]byte, fs.MaxFilenameLen)
	for i := range longName {
		longName[i] = 'a'
	}
	_, err = root.CreateFile(string(longName))
	require.ErrorIs(t, err, fs.ErrNameTooLong)
}

func TestDirectoryOverflowAndRemoval(t *testing.T) {
	dev := openDev(t, 2048)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	const count = 200
	names := make([]string, count)
	for i := 0; i < count; i++ {
		name := "f" + itoa(i)
		names[i] = name
		_, err := root.CreateFile(name)
		require.NoError(t, err)
	}

	entries, err := root.ReadDir()
	require.NoError(t, err)
	require.Len(t, entries, count)

	freeBeforeRemoval := dev.FreeBlocks()

	for _, name := range names {
		require.NoError(t, root.Remove(name))
	}

	entries, err = root.ReadDir()
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Greater(t, dev.FreeBlocks(), freeBeforeRemoval)

	_, err = root.OpenFile(names[0])
	require.ErrorIs(t, err, fs.ErrNotFound)
}

func TestRemoveSoleOccupantOfLastContinuationBlock(t *testing.T) {
	dev := openDev(t, 1024)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	names := make([]string, fs.FilesInFirstDB+1)
	for i := range names {
		name := "x" + itoa(i)
		names[i] = name
		_, err := root.CreateFile(name)
		require.NoError(t, err)
	}

	last := names[len(names)-1]
	require.NoError(t, root.Remove(last))

	entries, err := root.ReadDir()
	require.NoError(t, err)
	require.Len(t, entries, fs.FilesInFirstDB)
}

func TestRemoveDirectoryRecursivelyFreesContents(t *testing.T) {
	dev := openDev(t, 128)
	root, err := fs.Init(dev)
	require.NoError(t, err)

	sub, err := root.MkDir("sub")
	require.NoError(t, err)
	_, err = sub.CreateFile("a.txt")
	require.NoError(t, err)
	_, err = sub.CreateFile("b.txt")
	require.NoError(t, err)
	_, err = sub.MkDir("nested")
	require.NoError(t, err)

	freeBefore := dev.FreeBlocks()
	require.NoError(t, root.Remove("sub"))
	require.Greater(t, dev.FreeBlocks(), freeBefore)

	entries, err := root.ReadDir()
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRemoveNonexistentReturnsNotFound(t *testing.T) {
	dev := openDev(t, 16)
	root, err := fs.Init(dev)
	require.NoError(t, err)
	err = root.Remove("ghost")
	require.True(t, errors.Is(err, fs.ErrNotFound))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
