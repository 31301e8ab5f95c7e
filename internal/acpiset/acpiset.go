// Package acpiset normalizes the already-synthesized ACPI table set a
// TD's virtual firmware consumes at boot into the three measured
// events of spec.md §4.4 item 8. Table synthesis (invoking an emulator
// to assemble tables/RSDP/table-loader bytes) and ACPI disassembly are
// both explicitly out of scope here: this package treats its three
// inputs as opaque, already-opened byte buffers, exactly as the
// teacher tools' GenerateTablesQemu2 output is consumed by
// measureSha384 at the MeasureTdxQemu call site.
package acpiset

import (
	"fmt"

	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

// Set is the three ACPI-related byte buffers the firmware measures, in
// the order they are extended into RTMR[0].
type Set struct {
	Tables      []byte
	RSDP        []byte
	TableLoader []byte
}

// Digests computes SHA384(Tables), SHA384(RSDP), SHA384(TableLoader),
// in that order, failing closed if any buffer is empty: an absent
// platform input is a structural error, not a zero-length table.
func (s Set) Digests() (tables, rsdp, tableLoader hasher.Register, err error) {
	if len(s.Tables) == 0 {
		return hasher.Register{}, hasher.Register{}, hasher.Register{}, fmt.Errorf("acpiset: tables blob is empty")
	}
	if len(s.RSDP) == 0 {
		return hasher.Register{}, hasher.Register{}, hasher.Register{}, fmt.Errorf("acpiset: rsdp blob is empty")
	}
	if len(s.TableLoader) == 0 {
		return hasher.Register{}, hasher.Register{}, hasher.Register{}, fmt.Errorf("acpiset: table_loader blob is empty")
	}
	return hasher.Sum384(s.Tables), hasher.Sum384(s.RSDP), hasher.Sum384(s.TableLoader), nil
}
