package snapshot_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfsgo/simplefs/blockdev"
	"github.com/sfsgo/simplefs/snapshot"
)

func TestExportImportRoundTrip(t *testing.T) {
	for _, codec := range []snapshot.Codec{snapshot.LZ4, snapshot.XZ} {
		path := filepath.Join(t.TempDir(), "disk.img")
		dev, err := blockdev.Open(path, 32)
		require.NoError(t, err)

		payload := make([]byte, blockdev.BlockSize)
		copy(payload, "snapshot me")
		require.NoError(t, dev.WriteBlock(payload, 3))
		require.NoError(t, dev.WriteBlock(payload, 9))

		var buf bytes.Buffer
		require.NoError(t, snapshot.Export(dev, &buf, codec))
		require.NoError(t, dev.Close())

		restoredPath := filepath.Join(t.TempDir(), "restored.img")
		restored, err := snapshot.Import(&buf, restoredPath)
		require.NoError(t, err)
		defer restored.Close()

		require.Equal(t, 32, restored.NumBlocks())
		out := make([]byte, blockdev.BlockSize)
		require.NoError(t, restored.ReadBlock(out, 3))
		require.Equal(t, payload, out)
		require.NoError(t, restored.ReadBlock(out, 9))
		require.Equal(t, payload, out)
	}
}

func TestImportRejectsNonSnapshotStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restored.img")
	_, err := snapshot.Import(bytes.NewReader([]byte("not a snapshot")), path)
	require.Error(t, err)
}
