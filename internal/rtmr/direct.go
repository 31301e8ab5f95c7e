package rtmr

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/tdxpredict/tdx-measure/internal/eventlog"
	"github.com/tdxpredict/tdx-measure/internal/kernel"
	"github.com/tdxpredict/tdx-measure/internal/pecoff"
	"github.com/tdxpredict/tdx-measure/internal/uefivar"
)

var gzipMagic = [2]byte{0x1F, 0x8B}

// BuildRTMR1Direct sequences the single direct-boot kernel event of
// spec.md §4.5: the Authenticode digest of the (optionally
// gzip-decompressed) patched kernel image.
func BuildRTMR1Direct(kernelImage []byte, memoryBytes uint64, initrdSize uint32, acpiBlobSize uint32) (*eventlog.Log, error) {
	image := kernelImage
	if len(image) >= 2 && image[0] == gzipMagic[0] && image[1] == gzipMagic[1] {
		decompressed, err := gunzip(image)
		if err != nil {
			return nil, fmt.Errorf("rtmr: decompressing kernel image: %w", err)
		}
		image = decompressed
	}

	digest, err := kernel.PatchAndDigest(image, initrdSize, memoryBytes, acpiBlobSize)
	if err != nil {
		return nil, fmt.Errorf("rtmr: kernel image: %w", err)
	}

	log := eventlog.New("RTMR1")
	log.Extend("kernel-image", digest)
	return log, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// BuildRTMR1DirectPE is an alternative entry point for a direct-boot
// image whose digest should be taken directly via Authenticode,
// bypassing the QEMU setup_header patch — used when the kernel is
// presented as a Unified Kernel Image rather than a bare bzImage.
func BuildRTMR1DirectPE(image []byte) (*eventlog.Log, error) {
	digest, err := pecoff.Digest(image)
	if err != nil {
		return nil, fmt.Errorf("rtmr: kernel PE image: %w", err)
	}
	log := eventlog.New("RTMR1")
	log.Extend("kernel-image", digest)
	return log, nil
}

// BuildRTMR2Direct sequences spec.md §4.6's direct-boot command-line
// and initrd events.
func BuildRTMR2Direct(cmdline string, initrd []byte) (*eventlog.Log, error) {
	cmdlineDigest, err := uefivar.CmdlineMeasurement(cmdline)
	if err != nil {
		return nil, fmt.Errorf("rtmr: cmdline: %w", err)
	}

	log := eventlog.New("RTMR2")
	log.Extend("cmdline", cmdlineDigest)
	log.ExtendBytes("initrd", initrd)
	return log, nil
}
