package qcow2_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/qcow2"
)

// buildTestImage constructs a minimal QCOW2 file with a 512-byte
// cluster size, a single L1 entry, and two allocated data clusters
// plus one unallocated (sparse) cluster.
func buildTestImage(t *testing.T) []byte {
	t.Helper()
	const clusterSize = 512

	buf := make([]byte, 2048)
	copy(buf[0:4], []byte{0x51, 0x46, 0x49, 0xFB})
	binary.BigEndian.PutUint32(buf[4:8], 3)    // Version.
	binary.BigEndian.PutUint64(buf[8:16], 0)   // BackingFileOffset.
	binary.BigEndian.PutUint32(buf[16:20], 0)  // BackingFileSize.
	binary.BigEndian.PutUint32(buf[20:24], 9)  // ClusterBits (512-byte clusters).
	binary.BigEndian.PutUint64(buf[24:32], 3*clusterSize) // Virtual disk size: 3 clusters.
	binary.BigEndian.PutUint32(buf[32:36], 0)  // CryptMethod.
	binary.BigEndian.PutUint32(buf[36:40], 1)  // L1Size.
	binary.BigEndian.PutUint64(buf[40:48], 128) // L1TableOffset.

	// L1 table: one entry pointing at the L2 table.
	binary.BigEndian.PutUint64(buf[128:136], 256)

	// L2 table at host offset 256: entries 0 and 1 allocated, entry 2 sparse.
	l2Off := 256
	binary.BigEndian.PutUint64(buf[l2Off:l2Off+8], 1024)          // Cluster 0 data.
	binary.BigEndian.PutUint64(buf[l2Off+8:l2Off+16], 1024+clusterSize) // Cluster 1 data.
	// Entry for cluster 2 left zero (unallocated).

	for i := 0; i < clusterSize; i++ {
		buf[1024+i] = 0xAA
		buf[1024+clusterSize+i] = 0xBB
	}

	return buf
}

func TestOpenParsesHeader(t *testing.T) {
	raw := buildTestImage(t)
	img, err := qcow2.Open(bytes.NewReader(raw))
	require.NoError(t, err)
	require.EqualValues(t, 3*512, img.Size())
	require.EqualValues(t, 9, img.Header().ClusterBits)
}

func TestReadAtResolvesAllocatedClusters(t *testing.T) {
	raw := buildTestImage(t)
	img, err := qcow2.Open(bytes.NewReader(raw))
	require.NoError(t, err)

	got := make([]byte, 1024)
	n, err := img.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, 1024, n)
	require.Equal(t, bytes.Repeat([]byte{0xAA}, 512), got[:512])
	require.Equal(t, bytes.Repeat([]byte{0xBB}, 512), got[512:])
}

func TestReadAtZerosUnallocatedCluster(t *testing.T) {
	raw := buildTestImage(t)
	img, err := qcow2.Open(bytes.NewReader(raw))
	require.NoError(t, err)

	got := make([]byte, 512)
	n, err := img.ReadAt(got, 1024)
	require.NoError(t, err)
	require.Equal(t, 512, n)
	require.Equal(t, bytes.Repeat([]byte{0x00}, 512), got)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	raw := buildTestImage(t)
	raw[0] = 0x00
	_, err := qcow2.Open(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestOpenRejectsEncrypted(t *testing.T) {
	raw := buildTestImage(t)
	binary.BigEndian.PutUint32(raw[32:36], 1)
	_, err := qcow2.Open(bytes.NewReader(raw))
	require.Error(t, err)
}
