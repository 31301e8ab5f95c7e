package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func header(protocol uint16) []byte {
	kd := make([]byte, 0x1000)
	binary.LittleEndian.PutUint16(kd[0x206:0x208], protocol)
	return kd
}

func TestInitrdAddressOldProtocolDefaultsTo37ffffff(t *testing.T) {
	kd := header(0x202)
	addr, err := initrdAddress(kd, 0x202, 1024, 2*1024*1024*1024, 0x20000)
	require.NoError(t, err)
	require.Zero(t, addr%4096)
	require.Less(t, addr, uint32(0x37ffffff))
}

func TestInitrdAddressRespectsExplicitMax(t *testing.T) {
	kd := header(0x203)
	binary.LittleEndian.PutUint32(kd[0x22c:0x230], 0x10000000)
	addr, err := initrdAddress(kd, 0x203, 1024, 2*1024*1024*1024, 0x1000)
	require.NoError(t, err)
	require.Less(t, addr, uint32(0x10000000))
}

func TestInitrdAddressPageAlignedWhenXLFSet(t *testing.T) {
	kd := header(0x20c)
	binary.LittleEndian.PutUint16(kd[0x236:0x238], 0x40) // XLF_CAN_BE_LOADED_ABOVE_4G.
	addr, err := initrdAddress(kd, 0x20c, 1024, 2*1024*1024*1024, 0x20000)
	require.NoError(t, err)
	require.Zero(t, addr%4096)
}

func TestInitrdAddressLowMemoryClamp(t *testing.T) {
	kd := header(0x20c)
	// memory below the 0xb0000000 threshold clamps below4gMemSize to memoryBytes.
	addr, err := initrdAddress(kd, 0x20c, 1024, 64*1024*1024, 0x1000)
	require.NoError(t, err)
	require.Less(t, addr, uint32(64*1024*1024))
}
