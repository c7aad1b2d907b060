package blockdev

import "encoding/binary"

// BlockSize is the fixed size, in bytes, of every block in the container:
// the metadata region's blocks and every data block alike.
const BlockSize = 512

// MaxFilenameLen is the maximum length, including the terminating NUL, of
// a name stored in a FileControlBlock.
const MaxFilenameLen = 128

// diskHeaderSize is the encoded, on-disk size of a DiskHeader.
const diskHeaderSize = 4 + 4 + 4 + 4 + 16

// DiskHeader is the fixed record at byte 0 of the container file.
type DiskHeader struct {
	NumBlocks     int32
	FreeBlocks    int32
	BitmapEntries int32 // byte length of the bitmap
	BitmapBlocks  int32 // == NumBlocks
	VolumeID      [16]byte
}

func (h *DiskHeader) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(h.NumBlocks))
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.FreeBlocks))
	binary.LittleEndian.PutUint32(b[8:12], uint32(h.BitmapEntries))
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.BitmapBlocks))
	copy(b[16:32], h.VolumeID[:])
}

func decodeDiskHeader(b []byte) DiskHeader {
	var h DiskHeader
	h.NumBlocks = int32(binary.LittleEndian.Uint32(b[0:4]))
	h.FreeBlocks = int32(binary.LittleEndian.Uint32(b[4:8]))
	h.BitmapEntries = int32(binary.LittleEndian.Uint32(b[8:12]))
	h.BitmapBlocks = int32(binary.LittleEndian.Uint32(b[12:16]))
	copy(h.VolumeID[:], b[16:32])
	return h
}

// metadataSize returns the size, rounded up to a BlockSize boundary, of the
// header+bitmap region for a container holding numBlocks blocks.
func metadataSize(numBlocks int) int64 {
	bitmapSize := bitmapByteLen(numBlocks)
	raw := diskHeaderSize + bitmapSize
	return int64(roundUp(raw, BlockSize))
}

func bitmapByteLen(numBlocks int) int {
	return (numBlocks + 7) / 8
}

func roundUp(n, multiple int) int {
	return ((n + multiple - 1) / multiple) * multiple
}
