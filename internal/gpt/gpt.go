// Package gpt parses a GUID Partition Table off a raw disk image and
// re-synthesizes the normalized UEFI_GPT_DATA blob the firmware
// measures into RTMR[1], per spec.md §4.10. The measurement-blob shape
// is ported from the teacher tools' calculateUEFIDiskGUIDHash, which
// built one synthetic single-ESP table; this package instead parses
// whatever table is actually on disk.
package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/tdxpredict/tdx-measure/internal/guid"
	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

const (
	sectorSize  = 512
	headerLBA   = 1
	signature   = "EFI PART"
	revision100 = 0x00010000
)

// Header mirrors EFI_PARTITION_TABLE_HEADER, sans the trailing Reserved
// padding to HeaderSize (which is always 92 on the images this parser
// targets).
type Header struct {
	Revision                 uint32
	HeaderSize               uint32
	HeaderCRC32              uint32
	MyLBA                    uint64
	AlternateLBA             uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 guid.GUID
	PartitionEntryLBA        uint64
	NumberOfPartitionEntries uint32
	SizeOfPartitionEntry     uint32
	PartitionEntryArrayCRC32 uint32
}

// Entry mirrors EFI_PARTITION_ENTRY.
type Entry struct {
	PartitionTypeGUID   guid.GUID
	UniquePartitionGUID guid.GUID
	StartingLBA         uint64
	EndingLBA           uint64
	Attributes          uint64
	PartitionName       [72]byte // UTF-16LE, 36 code units.
}

// Used reports whether this entry is populated, per spec.md §4.10: a
// non-zero PartitionTypeGUID marks a used entry.
func (e Entry) Used() bool { return !e.PartitionTypeGUID.IsZero() }

// Table is a parsed GPT: its header and the used partition entries, in
// on-disk order.
type Table struct {
	Header  Header
	Entries []Entry
}

// EfiSystemPartitionGUID is the well-known ESP PartitionTypeGUID.
var EfiSystemPartitionGUID = guid.EfiSystemPartition

// Parse validates the protective MBR and GPT header/partition-array
// CRCs, then enumerates the partition entries. disk must begin at LBA 0
// and span at least through the partition entry array; callers reading
// off a QCOW2 image resolve logical blocks through internal/qcow2
// first.
func Parse(disk []byte) (*Table, error) {
	if len(disk) < 2*sectorSize {
		return nil, fmt.Errorf("gpt: image too small for protective MBR and GPT header")
	}
	if err := validateProtectiveMBR(disk[:sectorSize]); err != nil {
		return nil, err
	}

	headerOff := headerLBA * sectorSize
	if len(disk) < headerOff+sectorSize {
		return nil, fmt.Errorf("gpt: image too small for GPT header")
	}
	hdrBytes := disk[headerOff : headerOff+sectorSize]

	if string(hdrBytes[:8]) != signature {
		return nil, fmt.Errorf("gpt: bad signature %q", hdrBytes[:8])
	}

	var h Header
	h.Revision = binary.LittleEndian.Uint32(hdrBytes[8:12])
	h.HeaderSize = binary.LittleEndian.Uint32(hdrBytes[12:16])
	h.HeaderCRC32 = binary.LittleEndian.Uint32(hdrBytes[16:20])
	h.MyLBA = binary.LittleEndian.Uint64(hdrBytes[24:32])
	h.AlternateLBA = binary.LittleEndian.Uint64(hdrBytes[32:40])
	h.FirstUsableLBA = binary.LittleEndian.Uint64(hdrBytes[40:48])
	h.LastUsableLBA = binary.LittleEndian.Uint64(hdrBytes[48:56])
	copy(h.DiskGUID[:], hdrBytes[56:72])
	h.PartitionEntryLBA = binary.LittleEndian.Uint64(hdrBytes[72:80])
	h.NumberOfPartitionEntries = binary.LittleEndian.Uint32(hdrBytes[80:84])
	h.SizeOfPartitionEntry = binary.LittleEndian.Uint32(hdrBytes[84:88])
	h.PartitionEntryArrayCRC32 = binary.LittleEndian.Uint32(hdrBytes[88:92])

	if h.Revision != revision100 {
		return nil, fmt.Errorf("gpt: unsupported revision 0x%08x", h.Revision)
	}

	headerForCRC := make([]byte, h.HeaderSize)
	copy(headerForCRC, hdrBytes[:h.HeaderSize])
	binary.LittleEndian.PutUint32(headerForCRC[16:20], 0) // HeaderCRC32 field zeroed for its own computation.
	if crc32.ChecksumIEEE(headerForCRC) != h.HeaderCRC32 {
		return nil, fmt.Errorf("gpt: header CRC mismatch")
	}

	entrySize := int(h.SizeOfPartitionEntry)
	arrayOff := int(h.PartitionEntryLBA) * sectorSize
	arrayLen := int(h.NumberOfPartitionEntries) * entrySize
	if len(disk) < arrayOff+arrayLen {
		return nil, fmt.Errorf("gpt: image too small for partition entry array")
	}
	arrayBytes := disk[arrayOff : arrayOff+arrayLen]
	if crc32.ChecksumIEEE(arrayBytes) != h.PartitionEntryArrayCRC32 {
		return nil, fmt.Errorf("gpt: partition entry array CRC mismatch")
	}

	entries := make([]Entry, 0, h.NumberOfPartitionEntries)
	for i := 0; i < int(h.NumberOfPartitionEntries); i++ {
		eb := arrayBytes[i*entrySize : (i+1)*entrySize]
		var e Entry
		copy(e.PartitionTypeGUID[:], eb[0:16])
		copy(e.UniquePartitionGUID[:], eb[16:32])
		e.StartingLBA = binary.LittleEndian.Uint64(eb[32:40])
		e.EndingLBA = binary.LittleEndian.Uint64(eb[40:48])
		e.Attributes = binary.LittleEndian.Uint64(eb[48:56])
		copy(e.PartitionName[:], eb[56:128])
		if e.Used() {
			entries = append(entries, e)
		}
	}

	return &Table{Header: h, Entries: entries}, nil
}

func validateProtectiveMBR(mbr []byte) error {
	if mbr[510] != 0x55 || mbr[511] != 0xAA {
		return fmt.Errorf("gpt: missing MBR boot signature")
	}
	// Partition entry 1 (offset 446) must declare OS type 0xEE (GPT protective).
	if mbr[446+4] != 0xEE {
		return fmt.Errorf("gpt: no protective GPT partition in MBR")
	}
	return nil
}

// MeasurementBlob serializes t into the normalized UEFI_GPT_DATA blob:
//
//	EFI_PARTITION_TABLE_HEADER(92B) || U64LE(NumberOfPartitions) || EFI_PARTITION_ENTRY[NumberOfPartitions]
//
// Entries are emitted in on-disk order, matching spec.md §4.10.
func (t *Table) MeasurementBlob() []byte {
	var buf bytes.Buffer
	writeHeader(&buf, t.Header)
	appendU64(&buf, uint64(len(t.Entries)))
	for _, e := range t.Entries {
		writeEntry(&buf, e)
	}
	return buf.Bytes()
}

// Digest returns SHA-384 of the measurement blob.
func (t *Table) Digest() hasher.Register {
	return hasher.Sum384(t.MeasurementBlob())
}

func writeHeader(buf *bytes.Buffer, h Header) {
	buf.WriteString(signature)
	appendU32(buf, h.Revision)
	appendU32(buf, h.HeaderSize)
	appendU32(buf, h.HeaderCRC32)
	appendU32(buf, 0) // Reserved.
	appendU64(buf, h.MyLBA)
	appendU64(buf, h.AlternateLBA)
	appendU64(buf, h.FirstUsableLBA)
	appendU64(buf, h.LastUsableLBA)
	buf.Write(h.DiskGUID.Bytes())
	appendU64(buf, h.PartitionEntryLBA)
	appendU32(buf, h.NumberOfPartitionEntries)
	appendU32(buf, h.SizeOfPartitionEntry)
	appendU32(buf, h.PartitionEntryArrayCRC32)
}

func writeEntry(buf *bytes.Buffer, e Entry) {
	buf.Write(e.PartitionTypeGUID.Bytes())
	buf.Write(e.UniquePartitionGUID.Bytes())
	appendU64(buf, e.StartingLBA)
	appendU64(buf, e.EndingLBA)
	appendU64(buf, e.Attributes)
	buf.Write(e.PartitionName[:])
}

func appendU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func appendU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
