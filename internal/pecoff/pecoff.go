// Package pecoff computes the Microsoft/TCG Authenticode digest of a
// PE/COFF image (a UKI or a bare Linux kernel stub), and extracts named
// PE sections out of a Unified Kernel Image.
//
// Digest computation is delegated to github.com/foxboron/go-uefi's
// authenticode parser, exactly as the teacher tools do; this package
// adds the section-extraction and pre-validation the teacher left
// inline in main.go and mr.go.
package pecoff

import (
	"bytes"
	"crypto"
	"debug/pe"
	"fmt"

	"github.com/foxboron/go-uefi/authenticode"

	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

// Digest computes the Authenticode (PE/COFF) digest of image using
// SHA-384, per spec.md §4.8. It validates that the image parses as PE
// before handing it to the Authenticode hasher, since a malformed UKI
// must fail with a descriptive error rather than panic deep inside a
// third-party parser.
func Digest(image []byte) (hasher.Register, error) {
	if _, err := pe.NewFile(bytes.NewReader(image)); err != nil {
		return hasher.Register{}, fmt.Errorf("pecoff: not a valid PE/COFF image: %w", err)
	}

	hashed, err := authenticode.Parse(bytes.NewReader(image))
	if err != nil {
		return hasher.Register{}, fmt.Errorf("pecoff: authenticode digest: %w", err)
	}

	var out hasher.Register
	copy(out[:], hashed.Hash(crypto.SHA384))
	return out, nil
}

// ExtractSection returns the raw bytes of a named PE section (e.g.
// ".linux", ".cmdline", ".initrd") out of a Unified Kernel Image, per
// spec.md §4.10's UKI decomposition.
func ExtractSection(uki []byte, name string) ([]byte, error) {
	f, err := pe.NewFile(bytes.NewReader(uki))
	if err != nil {
		return nil, fmt.Errorf("pecoff: parsing UKI as PE: %w", err)
	}
	defer f.Close()

	sec := f.Section(name)
	if sec == nil {
		return nil, fmt.Errorf("pecoff: UKI has no %q section", name)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("pecoff: reading %q section: %w", name, err)
	}
	return data, nil
}

// Sections lists the section names present in a PE image, in file
// order, for transcript/diagnostic use (spec.md §6's --transcript).
func Sections(image []byte) ([]string, error) {
	f, err := pe.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("pecoff: parsing image as PE: %w", err)
	}
	defer f.Close()

	names := make([]string, 0, len(f.Sections))
	for _, s := range f.Sections {
		names = append(names, s.Name)
	}
	return names, nil
}
