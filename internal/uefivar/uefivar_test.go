package uefivar_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/guid"
	"github.com/tdxpredict/tdx-measure/internal/hasher"
	"github.com/tdxpredict/tdx-measure/internal/uefivar"
)

func TestEncodeLayout(t *testing.T) {
	v := uefivar.Variable{
		VendorGUID: guid.EfiGlobalVariable,
		Name:       "SecureBoot",
		Data:       []byte{0x01},
	}
	b, err := uefivar.Encode(v)
	require.NoError(t, err)

	require.Equal(t, guid.EfiGlobalVariable.Bytes(), b[:guid.Size])
	nameChars := binary.LittleEndian.Uint64(b[guid.Size : guid.Size+8])
	dataLen := binary.LittleEndian.Uint64(b[guid.Size+8 : guid.Size+16])
	require.EqualValues(t, len("SecureBoot"), nameChars)
	require.EqualValues(t, 1, dataLen)
	require.Len(t, b, guid.Size+16+int(nameChars)*2+int(dataLen))
}

func TestRoundTrip(t *testing.T) {
	v := uefivar.Variable{
		VendorGUID: guid.EfiImageSecurityDatabase,
		Name:       "db",
		Data:       []byte{0xde, 0xad, 0xbe, 0xef},
	}
	b, err := uefivar.Encode(v)
	require.NoError(t, err)

	got, err := uefivar.Decode(b)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestDigestMatchesEncode(t *testing.T) {
	v := uefivar.Variable{VendorGUID: guid.EfiGlobalVariable, Name: "PK", Data: []byte{0x00}}
	digest, measured, err := uefivar.Digest(v)
	require.NoError(t, err)
	require.Equal(t, hasher.Sum384(measured), digest)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := uefivar.Decode([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestCmdlineMeasurementIncludesTrailingNUL(t *testing.T) {
	withNUL, err := uefivar.CmdlineMeasurement("console=ttyS0")
	require.NoError(t, err)
	var encoded []byte // UTF-16LE of the ASCII cmdline, no trailing NUL.
	for _, c := range []byte("console=ttyS0") {
		encoded = append(encoded, c, 0x00)
	}
	noNUL := hasher.Sum384(encoded)
	require.NotEqual(t, withNUL, noNUL)
	require.Equal(t, hasher.Sum384(append(encoded, 0x00, 0x00)), withNUL)
}

func TestLabeledCmdlineMeasurementDiffersByLabel(t *testing.T) {
	a, err := uefivar.LabeledCmdlineMeasurement("kernel_cmdline", "root=/dev/sda1")
	require.NoError(t, err)
	b, err := uefivar.LabeledCmdlineMeasurement("initrd", "root=/dev/sda1")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
