// Package qcow2 implements a minimal, read-only QCOW2 image decoder:
// just enough to resolve a guest-visible disk image's logical clusters
// through the L1/L2 table chain, so internal/gpt can parse a GPT off a
// QCOW2-backed virtual disk the same way it parses a raw one.
//
// The header layout is grounded on the QCOW2 on-disk format described
// in zchee/go-qcow2's types.go (itself a port of QEMU's block/qcow2.h);
// refcount handling and data decompression are out of scope (spec.md names
// a "read-only decoder sufficient to resolve logical block n", not a
// general-purpose QCOW2 implementation) so compressed and
// copy-on-write-backed clusters are rejected rather than silently
// misread.
package qcow2

import (
	"encoding/binary"
	"fmt"
	"io"
)

var magic = [4]byte{0x51, 0x46, 0x49, 0xFB} // "QFI\xfb"

const (
	v2HeaderSize = 72
	oflagCopied  = uint64(1) << 63
	oflagCompressed = uint64(1) << 62
	clusterOffsetMask = ^(oflagCopied | oflagCompressed)
)

// Header mirrors the fixed, version-2 portion of the QCOW2 header.
// Version 3 extension fields (incompatible/compatible/autoclear
// feature bitmaps, refcount order, header length) are not read by this
// decoder.
type Header struct {
	Version             uint32
	BackingFileOffset   uint64
	BackingFileSize     uint32
	ClusterBits         uint32
	Size                uint64
	CryptMethod         uint32
	L1Size              uint32
	L1TableOffset       uint64
	RefcountTableOffset uint64
	RefcountTableClusters uint32
	NbSnapshots         uint32
	SnapshotsOffset     uint64
}

// Image is an opened, read-only QCOW2 file.
type Image struct {
	r      io.ReaderAt
	header Header

	clusterSize uint64
	l2Entries   uint64
	l1Table     []uint64
}

// Open parses the QCOW2 header and active L1 table out of r.
func Open(r io.ReaderAt) (*Image, error) {
	hdrBytes := make([]byte, v2HeaderSize)
	if _, err := r.ReadAt(hdrBytes, 0); err != nil {
		return nil, fmt.Errorf("qcow2: reading header: %w", err)
	}
	if [4]byte(hdrBytes[:4]) != magic {
		return nil, fmt.Errorf("qcow2: bad magic %x", hdrBytes[:4])
	}

	var h Header
	h.Version = binary.BigEndian.Uint32(hdrBytes[4:8])
	if h.Version != 2 && h.Version != 3 {
		return nil, fmt.Errorf("qcow2: unsupported version %d", h.Version)
	}
	h.BackingFileOffset = binary.BigEndian.Uint64(hdrBytes[8:16])
	h.BackingFileSize = binary.BigEndian.Uint32(hdrBytes[16:20])
	h.ClusterBits = binary.BigEndian.Uint32(hdrBytes[20:24])
	h.Size = binary.BigEndian.Uint64(hdrBytes[24:32])
	h.CryptMethod = binary.BigEndian.Uint32(hdrBytes[32:36])
	h.L1Size = binary.BigEndian.Uint32(hdrBytes[36:40])
	h.L1TableOffset = binary.BigEndian.Uint64(hdrBytes[40:48])
	h.RefcountTableOffset = binary.BigEndian.Uint64(hdrBytes[48:56])
	h.RefcountTableClusters = binary.BigEndian.Uint32(hdrBytes[56:60])
	h.NbSnapshots = binary.BigEndian.Uint32(hdrBytes[60:64])
	h.SnapshotsOffset = binary.BigEndian.Uint64(hdrBytes[64:72])

	if h.BackingFileOffset != 0 {
		return nil, fmt.Errorf("qcow2: backing-file chains not supported")
	}
	if h.CryptMethod != 0 {
		return nil, fmt.Errorf("qcow2: encrypted images not supported")
	}
	if h.ClusterBits < 9 || h.ClusterBits > 21 {
		return nil, fmt.Errorf("qcow2: invalid cluster_bits %d", h.ClusterBits)
	}

	clusterSize := uint64(1) << h.ClusterBits
	l2Entries := clusterSize / 8

	l1Bytes := make([]byte, uint64(h.L1Size)*8)
	if len(l1Bytes) > 0 {
		if _, err := r.ReadAt(l1Bytes, int64(h.L1TableOffset)); err != nil {
			return nil, fmt.Errorf("qcow2: reading L1 table: %w", err)
		}
	}
	l1 := make([]uint64, h.L1Size)
	for i := range l1 {
		l1[i] = binary.BigEndian.Uint64(l1Bytes[i*8 : i*8+8])
	}

	return &Image{r: r, header: h, clusterSize: clusterSize, l2Entries: l2Entries, l1Table: l1}, nil
}

// Header returns the parsed QCOW2 header.
func (img *Image) Header() Header { return img.header }

// Size is the virtual (guest-visible) disk size in bytes.
func (img *Image) Size() uint64 { return img.header.Size }

// ReadAt resolves guest-visible disk offsets to host cluster offsets
// and reads into p, implementing io.ReaderAt over the decoded virtual
// disk. A read that lands in an unallocated cluster (no COW backing
// file) yields zero bytes, matching QCOW2 semantics for a sparse image.
func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off) >= img.header.Size {
		return 0, io.EOF
	}
	total := 0
	for total < len(p) {
		guestOffset := uint64(off) + uint64(total)
		if guestOffset >= img.header.Size {
			break
		}
		clusterOff := guestOffset & (img.clusterSize - 1)
		n := img.clusterSize - clusterOff
		if remain := uint64(len(p) - total); n > remain {
			n = remain
		}

		hostOffset, allocated, err := img.resolveCluster(guestOffset)
		if err != nil {
			return total, err
		}
		dst := p[total : total+int(n)]
		if !allocated {
			for i := range dst {
				dst[i] = 0
			}
		} else if _, err := img.r.ReadAt(dst, int64(hostOffset)+int64(clusterOff)); err != nil {
			return total, fmt.Errorf("qcow2: reading cluster data: %w", err)
		}
		total += int(n)
	}
	return total, nil
}

// resolveCluster walks the L1/L2 table chain for the cluster
// containing guestOffset, returning the host file offset of that
// cluster's data (valid only when allocated is true).
func (img *Image) resolveCluster(guestOffset uint64) (hostOffset uint64, allocated bool, err error) {
	clusterIndex := guestOffset >> img.header.ClusterBits
	l2Index := clusterIndex % img.l2Entries
	l1Index := clusterIndex / img.l2Entries

	if l1Index >= uint64(len(img.l1Table)) {
		return 0, false, fmt.Errorf("qcow2: offset out of L1 range")
	}
	l1Entry := img.l1Table[l1Index] & clusterOffsetMask
	if l1Entry == 0 {
		return 0, false, nil
	}

	l2Bytes := make([]byte, img.clusterSize)
	if _, err := img.r.ReadAt(l2Bytes, int64(l1Entry)); err != nil {
		return 0, false, fmt.Errorf("qcow2: reading L2 table: %w", err)
	}
	l2Entry := binary.BigEndian.Uint64(l2Bytes[l2Index*8 : l2Index*8+8])
	if l2Entry&oflagCompressed != 0 {
		return 0, false, fmt.Errorf("qcow2: compressed clusters not supported")
	}
	clusterData := l2Entry & clusterOffsetMask
	if clusterData == 0 {
		return 0, false, nil
	}
	return clusterData, true, nil
}
