// Package mrtd implements the MRTD engine: folding the initial TD
// memory image, page by page, into the build-time measurement register.
// The folding algorithm and TDCALL buffer layout are ported from the
// teacher tools' tdvfMetadata.computeMrtd.
package mrtd

import (
	"crypto/sha512"
	"encoding/binary"
	"hash"

	"github.com/tdxpredict/tdx-measure/internal/hasher"
	"github.com/tdxpredict/tdx-measure/internal/tdvf"
)

// Variant selects between the two known QEMU-TDX page-initialization
// orderings. Both are required for bit-compatibility with different VMM
// builds; spec.md §4.2 calls this the --two-pass-add-pages flag.
type Variant int

const (
	// VariantOnePass interleaves MEM.PAGE.ADD and MR.EXTEND per page: for
	// each page, emit its MEM.PAGE.ADD buffer immediately followed by its
	// MR.EXTEND buffers. This is the default.
	VariantOnePass Variant = iota
	// VariantTwoPass emits every page's MEM.PAGE.ADD buffer first, then
	// every page's MR.EXTEND buffers, both passes in address order.
	VariantTwoPass
)

// Compute folds every section of a parsed TDVF firmware image into
// MRTD, following the page-by-page protocol in spec.md §4.2:
//
//   - a 128-byte MEM.PAGE.ADD buffer is hashed for each page of a
//     section without PAGE_AUG set (sections with PAGE_AUG contribute
//     no MEM.PAGE.ADD buffer).
//   - 16 MR.EXTEND buffers are hashed per page of a section with
//     PAGE_EXT set, each followed by the 256-byte chunk it covers.
//
// fw is the raw firmware image; meta must have been parsed from fw via
// tdvf.ParseMetadata, whose validation guarantees every section's
// DataOffset/RawDataSize range indexes into fw.
//
// The fold streams through a single running SHA-384 context rather than
// materializing the event list, since firmware images can run to tens
// of megabytes (spec.md §5: no full copy retained beyond the input).
func Compute(fw []byte, meta *tdvf.Metadata, variant Variant) hasher.Register {
	a := &accumulator{h: sha512.New384()}

	for i := range meta.Sections {
		s := &meta.Sections[i]
		numPages := s.NumPages()

		switch variant {
		case VariantTwoPass:
			for page := uint64(0); page < numPages; page++ {
				a.aug(s, page)
			}
			for page := uint64(0); page < numPages; page++ {
				a.extend(s, fw, page)
			}
		default: // VariantOnePass
			for page := uint64(0); page < numPages; page++ {
				a.aug(s, page)
				a.extend(s, fw, page)
			}
		}
	}

	var out hasher.Register
	copy(out[:], a.h.Sum(nil))
	return out
}

type accumulator struct {
	h   hash.Hash
	buf [128]byte
}

// aug emits the MEM.PAGE.ADD buffer for one page when the section is not
// already marked PAGE_AUG (i.e. it still requires an explicit augment
// call rather than arriving pre-augmented).
func (a *accumulator) aug(s *tdvf.Section, page uint64) {
	if s.Attributes&tdvf.AttrPageAug != 0 {
		return
	}
	clear(a.buf[:])
	copy(a.buf[:12], []byte("MEM.PAGE.ADD"))
	binary.LittleEndian.PutUint64(a.buf[16:24], s.MemoryAddress+page*tdvf.PageSize)
	_, _ = a.h.Write(a.buf[:])
}

// extend emits the 16 MR.EXTEND buffers for one page when the
// section is marked PAGE_EXT.
func (a *accumulator) extend(s *tdvf.Section, fw []byte, page uint64) {
	if s.Attributes&tdvf.AttrMrExtend == 0 {
		return
	}
	chunksPerPage := tdvf.PageSize / tdvf.MrExtendGranularity
	for i := 0; i < chunksPerPage; i++ {
		clear(a.buf[:])
		copy(a.buf[:9], []byte("MR.EXTEND"))
		chunkAddr := s.MemoryAddress + page*tdvf.PageSize + uint64(i*tdvf.MrExtendGranularity)
		binary.LittleEndian.PutUint64(a.buf[16:24], chunkAddr)
		_, _ = a.h.Write(a.buf[:])

		chunkOffset := int(s.DataOffset) + int(page*tdvf.PageSize) + i*tdvf.MrExtendGranularity
		_, _ = a.h.Write(fw[chunkOffset : chunkOffset+tdvf.MrExtendGranularity])
	}
}
