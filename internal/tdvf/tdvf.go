// Package tdvf parses the TDX virtual firmware (OVMF/TDVF) metadata
// table embedded at the end of a firmware image: the OVMF table
// footer, the TDVF metadata descriptor it points at, and the section
// list describing the BFV, CFV, TD-HOB region and every other firmware
// volume slice along with its TDX page attributes.
//
// The layout and parsing algorithm are ported directly from the
// teacher tools' parseTdvfMetadata/GetTdxMetadataSections (themselves
// following Section 11 of the Intel TDX Virtual Firmware Design Guide),
// generalized to expose section lookups by type instead of only
// computing the CFV hash inline.
package tdvf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tdxpredict/tdx-measure/internal/guid"
)

// Page size TDX memory pages and MR.EXTEND chunks are measured at.
const (
	PageSize            = 0x1000
	MrExtendGranularity = 0x100
)

// Section attribute bits (Intel TDX Virtual Firmware Design Guide §11).
const (
	AttrMrExtend uint32 = 1 << 0 // PAGE_EXT: fold with TDH.MR.EXTEND.
	AttrPageAug  uint32 = 1 << 1 // PAGE_AUG: page is TDH.MEM.PAGE.AUG'd, no TDH.MEM.PAGE.ADD.
)

// Section types (Intel TDX Virtual Firmware Design Guide §11).
const (
	SectionBFV uint32 = iota
	SectionCFV
	SectionTDHOB
	SectionTempMem
	SectionPermMem
	SectionPayload
	SectionPayloadParam
)

// Section describes one slice of the firmware image that the VMM maps
// into TD guest physical memory.
type Section struct {
	DataOffset     uint32
	RawDataSize    uint32
	MemoryAddress  uint64
	MemoryDataSize uint64
	Type           uint32
	Attributes     uint32
}

// NumPages returns the number of 4 KiB TDX pages this section spans.
func (s *Section) NumPages() uint64 {
	return s.MemoryDataSize / PageSize
}

// Metadata is the parsed TDVF metadata table: the ordered section list.
type Metadata struct {
	Sections []Section
}

// SectionsOfType returns every section with the given type, in table
// order.
func (m *Metadata) SectionsOfType(t uint32) []Section {
	var out []Section
	for _, s := range m.Sections {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// HOBBaseAddress returns the TD-HOB section's guest-physical base
// address, falling back to the documented default base (0x809000) used
// by every QEMU-TDX build observed in the wild when no TD-HOB section is
// present in the metadata.
func (m *Metadata) HOBBaseAddress() uint64 {
	for _, s := range m.Sections {
		if s.Type == SectionTDHOB {
			return s.MemoryAddress
		}
	}
	return 0x809000
}

const (
	tdxMetadataOffsetGUID = "e47a6535-984a-4798-865e-4685a7bf8ec2"
	tdxMetadataVersion    = 1
	tdvfSignature         = "TDVF"
	tableFooterGUID       = "96b582de-1fb2-45f7-baea-a366c55a082d"
	bytesAfterTableFooter = 32
)

// ParseError reports a structural problem with the firmware image's
// TDVF/OVMF metadata table. Parsers in this package fail fast: they
// never guess at a plausible layout.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tdvf: malformed firmware metadata at offset %d: %s", e.Offset, e.Reason)
}

// ParseMetadata locates and parses the TDVF metadata table embedded in
// an OVMF/TDVF firmware image, following the OVMF table-footer
// convention: a GUID-tagged table list anchored 32 bytes from the end
// of the image, searched back-to-front for the TDX metadata offset GUID.
func ParseMetadata(fw []byte) (*Metadata, error) {
	if len(fw) < bytesAfterTableFooter {
		return nil, &ParseError{Offset: len(fw), Reason: "firmware image too small for OVMF table footer"}
	}

	offset := len(fw) - bytesAfterTableFooter
	footerGUID, err := guid.Parse(tableFooterGUID)
	if err != nil {
		panic(err)
	}
	gotGUID := fw[offset-guid.Size : offset]
	tablesLen := int(binary.LittleEndian.Uint16(fw[offset-guid.Size-2 : offset-guid.Size]))
	if !bytes.Equal(gotGUID, footerGUID.Bytes()) {
		return nil, &ParseError{Offset: offset, Reason: "OVMF table footer GUID mismatch"}
	}
	if tablesLen == 0 || tablesLen > offset-guid.Size-2 {
		return nil, &ParseError{Offset: offset, Reason: "OVMF table footer length out of range"}
	}
	tables := fw[offset-guid.Size-2-tablesLen : offset-guid.Size-2]

	tdxGUID, err := guid.Parse(tdxMetadataOffsetGUID)
	if err != nil {
		panic(err)
	}

	// Walk the GUID-tagged table list back-to-front looking for the TDX
	// metadata offset entry.
	var data []byte
	o := len(tables)
	for {
		if o < 18 {
			return nil, &ParseError{Offset: o, Reason: "TDX metadata offset GUID not found in OVMF table list"}
		}
		entryGUID := tables[o-guid.Size : o]
		entryLen := int(binary.LittleEndian.Uint16(tables[o-guid.Size-2 : o-guid.Size]))
		if o < 18+entryLen {
			return nil, &ParseError{Offset: o, Reason: "OVMF table entry length out of range"}
		}
		if bytes.Equal(entryGUID, tdxGUID.Bytes()) {
			data = tables[o-18-entryLen : o-18]
			break
		}
		o -= entryLen
	}

	// data's last 4 bytes are the (from-end) byte offset of the TDVF
	// metadata descriptor within the firmware image.
	metaOffset := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	metaOffset = len(fw) - metaOffset
	if metaOffset < 0 || metaOffset+16 > len(fw) {
		return nil, &ParseError{Offset: metaOffset, Reason: "TDVF metadata descriptor offset out of range"}
	}
	desc := fw[metaOffset : metaOffset+16]
	if string(desc[:4]) != tdvfSignature {
		return nil, &ParseError{Offset: metaOffset, Reason: "missing TDVF signature"}
	}
	version := binary.LittleEndian.Uint32(desc[8:12])
	if version != tdxMetadataVersion {
		return nil, &ParseError{Offset: metaOffset + 8, Reason: "unsupported TDVF metadata descriptor version"}
	}
	numSections := int(binary.LittleEndian.Uint32(desc[12:16]))

	meta := &Metadata{Sections: make([]Section, 0, numSections)}
	for i := 0; i < numSections; i++ {
		secOffset := metaOffset + 16 + 32*i
		if secOffset+32 > len(fw) {
			return nil, &ParseError{Offset: secOffset, Reason: "TDVF section table truncated"}
		}
		sd := fw[secOffset : secOffset+32]
		s := Section{
			DataOffset:     binary.LittleEndian.Uint32(sd[0:4]),
			RawDataSize:    binary.LittleEndian.Uint32(sd[4:8]),
			MemoryAddress:  binary.LittleEndian.Uint64(sd[8:16]),
			MemoryDataSize: binary.LittleEndian.Uint64(sd[16:24]),
			Type:           binary.LittleEndian.Uint32(sd[24:28]),
			Attributes:     binary.LittleEndian.Uint32(sd[28:32]),
		}
		if uint64(s.DataOffset)+uint64(s.RawDataSize) > uint64(len(fw)) {
			return nil, &ParseError{Offset: secOffset, Reason: "section raw data extends past end of firmware image"}
		}
		if s.MemoryAddress%PageSize != 0 {
			return nil, &ParseError{Offset: secOffset, Reason: "section memory address is not page-aligned"}
		}
		if s.MemoryDataSize < uint64(s.RawDataSize) {
			return nil, &ParseError{Offset: secOffset, Reason: "section memory data size smaller than raw data size"}
		}
		if s.MemoryDataSize%PageSize != 0 {
			return nil, &ParseError{Offset: secOffset, Reason: "section memory data size is not page-aligned"}
		}
		if s.Attributes&AttrMrExtend != 0 && uint64(s.RawDataSize) < s.MemoryDataSize {
			return nil, &ParseError{Offset: secOffset, Reason: "MR.EXTEND section raw data size smaller than memory data size"}
		}
		meta.Sections = append(meta.Sections, s)
	}
	return meta, nil
}

// ConfigurationFirmwareVolume returns the raw bytes of the first CFV
// section (the OVMF variable store slice measured whole into RTMR[0]).
func ConfigurationFirmwareVolume(fw []byte, meta *Metadata) ([]byte, error) {
	for _, s := range meta.Sections {
		if s.Type == SectionCFV {
			base, limit := int(s.DataOffset), int(s.DataOffset+s.RawDataSize)
			if base < 0 || limit > len(fw) || limit < base {
				return nil, &ParseError{Offset: base, Reason: "CFV section extends past end of firmware image"}
			}
			return fw[base:limit], nil
		}
	}
	return nil, &ParseError{Offset: -1, Reason: "no CFV section present in firmware metadata"}
}
