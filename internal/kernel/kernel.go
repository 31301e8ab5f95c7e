// Package kernel reproduces QEMU's x86_load_linux patching of a Linux
// boot_params "setup_header" before measuring the patched image's
// Authenticode digest, plus the initrd digest. Ported from the teacher
// tools' MeasureTdxQemuKernelImageData, generalized to accept memory
// size and ACPI blob size as explicit parameters rather than package
// globals.
package kernel

import (
	"bytes"
	"crypto"
	"encoding/binary"
	"fmt"

	"github.com/foxboron/go-uefi/authenticode"

	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

const minSetupHeaderLength = 0x1000

// PatchAndDigest patches a copy of kernelImage's setup_header exactly
// as QEMU's x86_load_linux does when booting a TD directly (no
// bootloader stage), then returns the Authenticode digest of the
// patched image. memoryBytes is the guest's total RAM; acpiBlobSize is
// the size of the synthesized ACPI table blob QEMU reserves below 4
// GiB, both needed to compute the initrd's maximum address.
func PatchAndDigest(kernelImage []byte, initrdSize uint32, memoryBytes uint64, acpiBlobSize uint32) (hasher.Register, error) {
	if len(kernelImage) < minSetupHeaderLength {
		return hasher.Register{}, fmt.Errorf("kernel: image too short: need at least %d bytes, got %d", minSetupHeaderLength, len(kernelImage))
	}

	kd := make([]byte, len(kernelImage))
	copy(kd, kernelImage)

	protocol := uint16(kd[0x206]) | uint16(kd[0x207])<<8

	var realAddr, cmdlineAddr uint32
	switch {
	case protocol < 0x200 || kd[0x211]&0x01 == 0:
		realAddr, cmdlineAddr = 0x90000, 0x9a000
	case protocol < 0x202:
		realAddr, cmdlineAddr = 0x90000, 0x9a000
	default:
		realAddr, cmdlineAddr = 0x10000, 0x20000
	}

	if protocol >= 0x200 {
		kd[0x210] = 0xb0 // type_of_loader = Qemu v0.
	}
	if protocol >= 0x201 {
		kd[0x211] |= 0x80 // loadflags |= CAN_USE_HEAP.
		binary.LittleEndian.PutUint32(kd[0x224:0x228], cmdlineAddr-realAddr-0x200)
	}
	if protocol >= 0x202 {
		binary.LittleEndian.PutUint32(kd[0x228:0x22c], cmdlineAddr)
	} else {
		binary.LittleEndian.PutUint16(kd[0x20:0x22], 0xA33F)
		binary.LittleEndian.PutUint16(kd[0x22:0x24], uint16(cmdlineAddr-realAddr))
	}

	if initrdSize > 0 {
		if protocol < 0x200 {
			return hasher.Register{}, fmt.Errorf("kernel: too old to load an initrd (boot protocol 0x%x)", protocol)
		}

		initrdAddr, err := initrdAddress(kd, protocol, initrdSize, memoryBytes, acpiBlobSize)
		if err != nil {
			return hasher.Register{}, err
		}
		binary.LittleEndian.PutUint32(kd[0x218:0x21c], initrdAddr)
		binary.LittleEndian.PutUint32(kd[0x21c:0x220], initrdSize)
	}

	parsed, err := authenticode.Parse(bytes.NewReader(kd))
	if err != nil {
		return hasher.Register{}, fmt.Errorf("kernel: authenticode digest: %w", err)
	}
	var out hasher.Register
	copy(out[:], parsed.Hash(crypto.SHA384))
	return out, nil
}

func initrdAddress(kd []byte, protocol uint16, initrdSize uint32, memoryBytes uint64, acpiBlobSize uint32) (uint32, error) {
	var initrdMax uint32
	switch {
	case protocol >= 0x20c:
		xlf := binary.LittleEndian.Uint16(kd[0x236:0x238])
		if xlf&0x40 != 0 { // XLF_CAN_BE_LOADED_ABOVE_4G.
			initrdMax = ^uint32(0)
		} else {
			initrdMax = 0x37ffffff
		}
	case protocol >= 0x203:
		initrdMax = binary.LittleEndian.Uint32(kd[0x22c:0x230])
		if initrdMax == 0 {
			initrdMax = 0x37ffffff
		}
	default:
		initrdMax = 0x37ffffff
	}

	lowmem := uint32(0x80000000)
	if memoryBytes < 0xb0000000 {
		lowmem = 0xb0000000
	}
	var below4gMemSize uint32
	if memoryBytes >= uint64(lowmem) {
		below4gMemSize = lowmem
	} else {
		below4gMemSize = uint32(memoryBytes)
	}

	if initrdMax >= below4gMemSize-acpiBlobSize {
		initrdMax = below4gMemSize - acpiBlobSize - 1
	}
	if initrdSize >= initrdMax {
		return 0, fmt.Errorf("kernel: initrd too large (max %d, got %d)", initrdMax, initrdSize)
	}

	return (initrdMax - initrdSize) &^ 4095, nil
}

// InitrdDigest returns SHA-384 of the raw initrd image, measured
// verbatim with no patching.
func InitrdDigest(initrd []byte) hasher.Register {
	return hasher.Sum384(initrd)
}
