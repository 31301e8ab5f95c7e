package rtmr

import (
	"fmt"
	"sort"

	"github.com/tdxpredict/tdx-measure/internal/acpiset"
	"github.com/tdxpredict/tdx-measure/internal/eventlog"
	"github.com/tdxpredict/tdx-measure/internal/guid"
	"github.com/tdxpredict/tdx-measure/internal/hob"
	"github.com/tdxpredict/tdx-measure/internal/tdvf"
	"github.com/tdxpredict/tdx-measure/internal/uefivar"
)

// SecureBootVariables holds the raw on-disk value of each standard
// Secure Boot authenticated variable. Any field left nil is measured
// as a present-but-empty variable (VariableData length 0), per
// spec.md §4.4 item 3 — a boot config that never set PK or KEK still
// produces a full, deterministic RTMR0.
type SecureBootVariables struct {
	SecureBoot []byte
	PK         []byte
	KEK        []byte
	DB         []byte
	DBX        []byte
}

// PlatformConfig is every RTMR0 input: the TDVF firmware layout,
// memory shape, Secure Boot / boot-entry variables, and the
// already-synthesized ACPI set. SbatLevel is populated only for an
// indirect (shim/GRUB) boot chain; it is nil for direct boot.
type PlatformConfig struct {
	CPUCount    uint32
	MemoryBytes uint64
	Firmware    []byte
	Metadata    *tdvf.Metadata

	SecureBoot SecureBootVariables
	BootOrder  []byte // Raw BootOrder variable value; measured as-is.
	// BootVariables maps a boot entry index (0x0000-0xFFFF) to its raw
	// Boot#### variable value.
	BootVariables map[uint16][]byte

	// SbatLevel is the raw SbatLevel variable value. Indirect boot only.
	SbatLevel []byte

	ACPI acpiset.Set
}

var separatorBytes = [4]byte{0, 0, 0, 0}

// BuildRTMR0 sequences the platform/firmware configuration event
// stream exactly as spec.md §4.4 orders it. indirect selects whether
// the SbatLevel event (item 7) is included.
func BuildRTMR0(cfg PlatformConfig, indirect bool) (*eventlog.Log, error) {
	if cfg.Metadata == nil {
		return nil, fmt.Errorf("rtmr: platform config missing parsed TDVF metadata")
	}

	log := eventlog.New("RTMR0")

	hobBytes := hob.Build(cfg.Metadata.HOBBaseAddress(), cfg.CPUCount, cfg.MemoryBytes)
	log.ExtendBytes("td-hob", hobBytes)

	cfv, err := tdvf.ConfigurationFirmwareVolume(cfg.Firmware, cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("rtmr: configuration firmware volume: %w", err)
	}
	log.ExtendBytes("cfv-image", cfv)

	for _, v := range []struct {
		vendor guid.GUID
		name   string
		data   []byte
	}{
		{guid.EfiGlobalVariable, "SecureBoot", cfg.SecureBoot.SecureBoot},
		{guid.EfiGlobalVariable, "PK", cfg.SecureBoot.PK},
		{guid.EfiGlobalVariable, "KEK", cfg.SecureBoot.KEK},
		{guid.EfiImageSecurityDatabase, "db", cfg.SecureBoot.DB},
		{guid.EfiImageSecurityDatabase, "dbx", cfg.SecureBoot.DBX},
	} {
		if err := extendVariable(log, v.vendor, v.name, v.data); err != nil {
			return nil, err
		}
	}

	log.ExtendBytes("separator", separatorBytes[:])

	if err := extendVariable(log, guid.EfiGlobalVariable, "BootOrder", cfg.BootOrder); err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(cfg.BootVariables))
	for idx := range cfg.BootVariables {
		indices = append(indices, int(idx))
	}
	sort.Ints(indices)
	for _, idx := range indices {
		name := fmt.Sprintf("Boot%04X", idx)
		if err := extendVariable(log, guid.EfiGlobalVariable, name, cfg.BootVariables[uint16(idx)]); err != nil {
			return nil, err
		}
	}

	if indirect {
		if err := extendVariable(log, guid.SbatLevelGUID, "SbatLevel", cfg.SbatLevel); err != nil {
			return nil, err
		}
	}

	tablesDigest, rsdpDigest, loaderDigest, err := cfg.ACPI.Digests()
	if err != nil {
		return nil, fmt.Errorf("rtmr: acpi set: %w", err)
	}
	log.Extend("acpi-tables", tablesDigest)
	log.Extend("acpi-rsdp", rsdpDigest)
	log.Extend("acpi-table-loader", loaderDigest)

	log.ExtendBytes("final-separator", separatorBytes[:])

	return log, nil
}

func extendVariable(log *eventlog.Log, vendor guid.GUID, name string, data []byte) error {
	digest, measured, err := uefivar.Digest(uefivar.Variable{VendorGUID: vendor, Name: name, Data: data})
	if err != nil {
		return fmt.Errorf("rtmr: serializing variable %q: %w", name, err)
	}
	log.ExtendWithData(name, digest, measured)
	return nil
}
