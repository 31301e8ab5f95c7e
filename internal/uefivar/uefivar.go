// Package uefivar implements the TCG-measured UEFI_VARIABLE_DATA
// serialization used for Secure Boot and MOK/SBAT variable measurements.
// It generalizes the teacher tools' inline measureTdxEfiVariable into a
// reusable, round-trippable (GUID, Name, Data) encoder/decoder, per
// spec.md §4.9.
package uefivar

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tdxpredict/tdx-measure/internal/guid"
	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

// Variable is a single measured EFI variable: its vendor GUID, name and
// raw on-disk data (including any authenticated-variable header).
type Variable struct {
	VendorGUID guid.GUID
	Name       string
	Data       []byte
}

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode produces the UEFI_VARIABLE_DATA byte form:
//
//	VendorGuid(16) || UnicodeNameLength(8,LE) || VariableDataLength(8,LE) || UnicodeName || VariableData
//
// UnicodeNameLength counts UTF-16 code units, excluding any trailing NUL.
func Encode(v Variable) ([]byte, error) {
	nameUTF16, err := encodeUTF16LE(v.Name)
	if err != nil {
		return nil, fmt.Errorf("uefivar: encoding name %q: %w", v.Name, err)
	}
	nameChars := len(nameUTF16) / 2

	out := make([]byte, 0, guid.Size+16+len(nameUTF16)+len(v.Data))
	out = append(out, v.VendorGUID.Bytes()...)
	out = appendU64(out, uint64(nameChars))
	out = appendU64(out, uint64(len(v.Data)))
	out = append(out, nameUTF16...)
	out = append(out, v.Data...)
	return out, nil
}

// Digest returns SHA384(Encode(v)), the value extended into RTMR[0] for
// this variable event.
func Digest(v Variable) (hasher.Register, []byte, error) {
	measured, err := Encode(v)
	if err != nil {
		return hasher.Register{}, nil, err
	}
	return hasher.Sum384(measured), measured, nil
}

// Decode parses the UEFI_VARIABLE_DATA wire form back into a Variable,
// the inverse of Encode. Used to verify the round-trip property in
// spec.md §8.
func Decode(b []byte) (Variable, error) {
	if len(b) < guid.Size+16 {
		return Variable{}, fmt.Errorf("uefivar: truncated variable data: %d bytes", len(b))
	}
	var v Variable
	copy(v.VendorGUID[:], b[:guid.Size])
	nameChars := binary.LittleEndian.Uint64(b[guid.Size : guid.Size+8])
	dataLen := binary.LittleEndian.Uint64(b[guid.Size+8 : guid.Size+16])

	nameBytes := nameChars * 2
	rest := b[guid.Size+16:]
	if uint64(len(rest)) < nameBytes+dataLen {
		return Variable{}, fmt.Errorf("uefivar: truncated variable data: name/data exceed buffer")
	}

	name, err := decodeUTF16LE(rest[:nameBytes])
	if err != nil {
		return Variable{}, fmt.Errorf("uefivar: decoding name: %w", err)
	}
	v.Name = name
	v.Data = append([]byte(nil), rest[nameBytes:nameBytes+dataLen]...)
	return v, nil
}

func encodeUTF16LE(s string) ([]byte, error) {
	enc := utf16LE.NewEncoder()
	xr := transform.NewReader(bytes.NewReader([]byte(s)), enc)
	return io.ReadAll(xr)
}

func decodeUTF16LE(b []byte) (string, error) {
	dec := utf16LE.NewDecoder()
	xr := transform.NewReader(bytes.NewReader(b), dec)
	out, err := io.ReadAll(xr)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

// CmdlineMeasurement implements spec.md §4.6's direct-boot cmdline event:
// SHA384(CSTR(cmdline) as UTF-16LE) where CSTR appends a trailing NUL
// before conversion.
func CmdlineMeasurement(cmdline string) (hasher.Register, error) {
	withNUL := cmdline + "\x00"
	encoded, err := encodeUTF16LE(withNUL)
	if err != nil {
		return hasher.Register{}, fmt.Errorf("uefivar: encoding cmdline: %w", err)
	}
	return hasher.Sum384(encoded), nil
}

// LabeledCmdlineMeasurement implements spec.md §4.6's indirect-boot
// (GRUB) cmdline event: SHA384(CSTR("kernel_cmdline") || UTF16LE(CSTR(cmdline))).
func LabeledCmdlineMeasurement(label, cmdline string) (hasher.Register, error) {
	encodedCmdline, err := encodeUTF16LE(cmdline + "\x00")
	if err != nil {
		return hasher.Register{}, fmt.Errorf("uefivar: encoding cmdline: %w", err)
	}
	buf := append([]byte(label), 0x00)
	buf = append(buf, encodedCmdline...)
	return hasher.Sum384(buf), nil
}
