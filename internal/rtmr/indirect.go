package rtmr

import (
	"fmt"

	"github.com/tdxpredict/tdx-measure/internal/eventlog"
	"github.com/tdxpredict/tdx-measure/internal/gpt"
	"github.com/tdxpredict/tdx-measure/internal/pecoff"
	"github.com/tdxpredict/tdx-measure/internal/uefivar"
)

// IndirectBootImages bundles the PE images read off the EFI System
// Partition a shim→GRUB boot chain loads from. Reading them off the
// GPT-addressed partition's filesystem is file I/O delegated to the
// orchestrator's caller (spec.md §1's "file I/O" is an out-of-scope
// external collaborator); this package only measures the bytes.
type IndirectBootImages struct {
	Shim []byte
	Grub []byte
}

// BuildRTMR1Indirect sequences spec.md §4.5's three indirect-boot
// events: the GPT event, then the SHIM and GRUB Authenticode digests.
func BuildRTMR1Indirect(disk *gpt.Table, images IndirectBootImages) (*eventlog.Log, error) {
	shimDigest, err := pecoff.Digest(images.Shim)
	if err != nil {
		return nil, fmt.Errorf("rtmr: shim image: %w", err)
	}
	grubDigest, err := pecoff.Digest(images.Grub)
	if err != nil {
		return nil, fmt.Errorf("rtmr: grub image: %w", err)
	}

	log := eventlog.New("RTMR1")
	log.ExtendBytes("gpt", disk.MeasurementBlob())
	log.Extend("shim", shimDigest)
	log.Extend("grub", grubDigest)
	return log, nil
}

// BuildRTMR2Indirect sequences spec.md §4.6's indirect-boot events:
// the GRUB-labeled command line, then MokList, MokListTrusted and
// MokListX in that fixed order.
func BuildRTMR2Indirect(cmdline string, mokList, mokListTrusted, mokListX []byte) (*eventlog.Log, error) {
	cmdlineDigest, err := uefivar.LabeledCmdlineMeasurement("kernel_cmdline", cmdline)
	if err != nil {
		return nil, fmt.Errorf("rtmr: cmdline: %w", err)
	}

	log := eventlog.New("RTMR2")
	log.Extend("cmdline", cmdlineDigest)

	for _, mok := range []struct {
		name string
		data []byte
	}{
		{"MokList", mokList},
		{"MokListTrusted", mokListTrusted},
		{"MokListX", mokListX},
	} {
		measured := append([]byte(mok.name), 0x00)
		measured = append(measured, mok.data...)
		log.ExtendBytes(mok.name, measured)
	}

	return log, nil
}
