// Package hob builds the byte-exact UEFI PI Hand-Off Block list a TDX
// VMM hands to a TD at start of day: a Phase Handoff Information Table
// header and a canonical sequence of Resource Descriptor HOBs covering
// low memory, the firmware region and (when present) high memory. The
// End-of-HOB-List terminator is not part of the returned bytes; only
// its placement is reflected in the handoff table's EfiEndOfHobList.
//
// The fixed low-memory/firmware-region layout is ported verbatim from
// the teacher tools' measureTdxQemuTdHob, which encodes the QEMU-TDX
// hw/i386/tdvf-hob.c construction for a single-BFV/CFV firmware layout.
package hob

import "encoding/binary"

// HOB types (UEFI PI spec, Volume 3, §HOB Code Definitions).
const (
	typeHandoff  uint16 = 0x0001
	typeResource uint16 = 0x0003
	typeEndList  uint16 = 0xFFFF
)

// Resource types (UEFI PI spec §EFI_RESOURCE_TYPE).
const (
	ResourceSystemMemory     uint8 = 0x00
	ResourceMemoryUnaccepted uint8 = 0x07
)

const resourceAttribute uint32 = 0x00000007

// highMemorySplit is the memory-size threshold (2.75 GiB) at or above
// which the TD-HOB gains a second, high-memory resource descriptor: low
// DRAM then stops at 2 GiB and the remaining memory_bytes - 2 GiB are
// placed from 4 GiB up. Below it, all DRAM fits below the 4 GiB MMIO hole.
//
// spec.md §9 flags this boundary as an Open Question requiring
// validation against a live guest. DESIGN.md records the decision: we
// follow the teacher tools' value (2816 MiB = 0xB0000000), which both
// independently-maintained measurement tools in the pack agree on and
// which matches QEMU's i440fx/q35 "above 4G memory gap" convention.
const highMemorySplit = 0xB0000000

// resourceRegion is one fixed entry in the canonical low-memory/firmware
// layout: {type, start, length}. Lengths are fixed regardless of total
// memory size; only the final low-DRAM region and the optional
// high-memory region scale with memory_bytes.
type resourceRegion struct {
	rtype  uint8
	start  uint64
	length uint64
}

// fixedLowRegions is the canonical ordering below the 0x820000 boundary:
// low DRAM below reserved firmware, the firmware region itself (BFV/
// CFV/TD-HOB as a handful of reserved-vs-memory slices), then the
// remainder of low DRAM resumes at 0x820000 in Build.
var fixedLowRegions = []resourceRegion{
	{ResourceMemoryUnaccepted, 0x0000000000000000, 0x0000000000800000},
	{ResourceSystemMemory, 0x0000000000800000, 0x0000000000006000},
	{ResourceMemoryUnaccepted, 0x0000000000806000, 0x0000000000003000},
	{ResourceSystemMemory, 0x0000000000809000, 0x0000000000002000},
	{ResourceSystemMemory, 0x000000000080B000, 0x0000000000002000},
	{ResourceMemoryUnaccepted, 0x000000000080D000, 0x0000000000004000},
	{ResourceSystemMemory, 0x0000000000811000, 0x000000000000f000},
}

const lowRegionsEnd = 0x0000000000820000

// Build produces the byte-exact TD-HOB list for a TD with the given CPU
// count, total memory size and TD-HOB base address (from the parsed
// TDVF metadata's TD-HOB section, or its documented default).
//
// Invariants enforced: total length is a multiple of 8, EfiEndOfHobList
// points at the guest-physical address just past the 8-byte
// End-of-HOB-List terminator the VMM places right after the list (the
// terminator itself is not part of the measured byte stream — see the
// note at the patch site), and the resource descriptors' lengths add up
// to memoryBytes, in the canonical order documented above.
func Build(hobBaseAddr uint64, cpuCount uint32, memoryBytes uint64) []byte {
	var b []byte

	// EFI_HOB_HANDOFF_INFO_TABLE, 56 bytes. CPU count does not appear in
	// this structure in the QEMU-TDX encoding observed across the pack
	// (cpuCount informs TD-scope resources outside the HOB, e.g. the MADT
	// in the ACPI set); it is accepted here for API symmetry with the
	// rest of the orchestrator and so future HOB revisions that do encode
	// it have a natural parameter to extend.
	_ = cpuCount
	b = appendU16(b, typeHandoff)
	b = appendU16(b, 0x38) // HobLength = 56.
	b = appendU32(b, 0)    // Reserved.
	b = appendU32(b, 9)    // Version = EFI_HOB_HANDOFF_TABLE_VERSION.
	b = appendU32(b, 0)    // BootMode.
	b = appendU64(b, 0)    // EfiMemoryTop.
	b = appendU64(b, 0)    // EfiMemoryBottom.
	b = appendU64(b, 0)    // EfiFreeMemoryTop.
	b = appendU64(b, 0)    // EfiFreeMemoryBottom.
	endOfListOffset := len(b)
	b = appendU64(b, 0) // EfiEndOfHobList, patched once the length is known.

	addResource := func(rtype uint8, start, length uint64) {
		b = appendU16(b, typeResource)
		b = appendU16(b, 0x30) // HobLength = 48.
		b = appendU32(b, 0)    // Reserved.
		b = append(b, make([]byte, 16)...) // Owner GUID, zero.
		b = appendU32(b, uint32(rtype))
		b = appendU32(b, resourceAttribute)
		b = appendU64(b, start)
		b = appendU64(b, length)
	}

	remaining := memoryBytes
	for _, r := range fixedLowRegions {
		addResource(r.rtype, r.start, r.length)
		remaining -= r.length
	}

	if memoryBytes >= highMemorySplit {
		// Low DRAM resumes at 0x820000 and stops at 2 GiB, where the
		// below-4 GiB MMIO hole begins (0x820000 + 0x7F7E0000 =
		// 0x80000000); the remainder is placed from 4 GiB up.
		const lowDRAMLen = 0x000000007F7E0000
		addResource(ResourceMemoryUnaccepted, lowRegionsEnd, lowDRAMLen)
		remaining -= lowDRAMLen
		addResource(ResourceMemoryUnaccepted, 0x0000000100000000, remaining)
	} else {
		addResource(ResourceMemoryUnaccepted, lowRegionsEnd, remaining)
	}

	// EfiEndOfHobList points 8 bytes past the last resource HOB — just
	// past the 8-byte End-of-HOB-List terminator that would follow it.
	// QEMU-TDX computes this address but does not include the
	// terminator's own bytes in the measured HOB stream; this is ported
	// byte-for-byte from the teacher tools, which both independently
	// confirm this against a live guest.
	binary.LittleEndian.PutUint64(b[endOfListOffset:endOfListOffset+8], hobBaseAddr+uint64(len(b))+8)

	return b
}

func appendU16(b []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(b, buf[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}
