// Package guid implements the mixed-endian EFI_GUID wire encoding used
// throughout UEFI/TDX metadata: the first three fields are little-endian,
// the last two (the 8-byte "Data4" clump) are big-endian. This is the
// generalized, parsed form of the teacher tools' ad-hoc
// encodeGUID(string) helper, backed by google/uuid for string parsing and
// canonicalization.
package guid

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Size is the wire width of an EFI_GUID.
const Size = 16

// GUID is an EFI_GUID: 16 bytes, encoded little-endian in the first three
// fields and big-endian in the trailing 8-byte clump.
type GUID [Size]byte

// Parse parses a standard hyphenated GUID/UUID string (e.g.
// "8BE4DF61-93CA-11D2-AA0D-00E098032B8C") into its EFI wire encoding.
func Parse(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("guid: invalid GUID %q: %w", s, err)
	}
	raw := u[:] // big-endian RFC-4122 byte order

	var g GUID
	// Data1 (4 bytes, LE), Data2 (2 bytes, LE), Data3 (2 bytes, LE).
	g[0], g[1], g[2], g[3] = raw[3], raw[2], raw[1], raw[0]
	g[4], g[5] = raw[5], raw[4]
	g[6], g[7] = raw[7], raw[6]
	// Data4 (8 bytes, big-endian / network order, copied verbatim).
	copy(g[8:16], raw[8:16])
	return g, nil
}

// MustParse is Parse, panicking on error. Reserved for compile-time-known
// constant GUIDs (vendor GUIDs named directly in this codebase).
func MustParse(s string) GUID {
	g, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}

// String renders the GUID back to standard hyphenated form, in the
// uppercase hex the GUID constants below are written in.
func (g GUID) String() string {
	d1 := binary.LittleEndian.Uint32(g[0:4])
	d2 := binary.LittleEndian.Uint16(g[4:6])
	d3 := binary.LittleEndian.Uint16(g[6:8])
	return fmt.Sprintf("%08X-%04X-%04X-%X-%X", d1, d2, d3, g[8:10], g[10:16])
}

// Bytes returns the raw 16-byte wire encoding.
func (g GUID) Bytes() []byte {
	return g[:]
}

// IsZero reports whether g is the all-zero GUID, used to detect unused
// GPT partition entries.
func (g GUID) IsZero() bool {
	return g == GUID{}
}

var (
	// EfiGlobalVariable is the vendor GUID for standard Secure Boot
	// variables (SecureBoot, PK, KEK).
	EfiGlobalVariable = MustParse("8BE4DF61-93CA-11D2-AA0D-00E098032B8C")
	// EfiImageSecurityDatabase is the vendor GUID for db/dbx.
	EfiImageSecurityDatabase = MustParse("D719B2CB-3D3A-4596-A3BC-DAD00E67656F")
	// EfiSystemPartition is the GPT partition type GUID for an ESP.
	EfiSystemPartition = MustParse("C12A7328-F81F-11D2-BA4B-00A0C93EC93B")
	// ShimLockGUID is the vendor GUID shim uses for its MOK variables
	// (MokList, MokListX, MokListTrusted, ...).
	ShimLockGUID = MustParse("605DAB50-E046-4300-ABB6-3DD810DD8B23")
	// SbatLevelGUID is the vendor GUID GRUB/shim use for the SbatLevel
	// variable. Deliberately the same value as ShimLockGUID: shim
	// defines SbatLevel under its own SHIM_LOCK_GUID rather than a
	// distinct vendor GUID.
	SbatLevelGUID = ShimLockGUID
)
