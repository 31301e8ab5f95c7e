package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/kernel"
)

func TestPatchAndDigestRejectsShortImage(t *testing.T) {
	_, err := kernel.PatchAndDigest(make([]byte, 16), 0, 2*1024*1024*1024, 0x20000)
	require.Error(t, err)
}

func TestPatchAndDigestRejectsInitrdOnAncientProtocol(t *testing.T) {
	kd := make([]byte, 0x1000)
	// protocol field (0x206:0x208) left at 0x0000, below 0x200.
	_, err := kernel.PatchAndDigest(kd, 1024, 2*1024*1024*1024, 0x20000)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too old")
}

func TestPatchAndDigestRejectsOversizedInitrd(t *testing.T) {
	kd := make([]byte, 0x1000)
	kd[0x206], kd[0x207] = 0x03, 0x02 // protocol 0x203.
	kd[0x211] = 0x01                  // loadflags bit 0 set -> "high" kernel.
	// initrd_addr_max left at 0, defaults to 0x37ffffff inside the package.
	_, err := kernel.PatchAndDigest(kd, 0x40000000, 2*1024*1024*1024, 0x20000)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too large")
}

func TestInitrdDigestIsPlainSha384(t *testing.T) {
	a := kernel.InitrdDigest([]byte("initrd contents"))
	b := kernel.InitrdDigest([]byte("initrd contents"))
	require.Equal(t, a, b)
	c := kernel.InitrdDigest([]byte("different"))
	require.NotEqual(t, a, c)
}
