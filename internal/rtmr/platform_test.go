package rtmr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/acpiset"
	"github.com/tdxpredict/tdx-measure/internal/rtmr"
	"github.com/tdxpredict/tdx-measure/internal/tdvf"
)

func minimalPlatformConfig() rtmr.PlatformConfig {
	return rtmr.PlatformConfig{
		CPUCount:    1,
		MemoryBytes: 2 * 1024 * 1024 * 1024,
		Firmware:    make([]byte, 16),
		Metadata: &tdvf.Metadata{Sections: []tdvf.Section{
			{Type: tdvf.SectionCFV, DataOffset: 0, RawDataSize: 16},
		}},
		ACPI: acpiset.Set{
			Tables:      []byte("tables"),
			RSDP:        []byte("rsdp"),
			TableLoader: []byte("loader"),
		},
	}
}

func TestBuildRTMR0DirectEventOrder(t *testing.T) {
	cfg := minimalPlatformConfig()
	cfg.BootVariables = map[uint16][]byte{
		0x0002: []byte("two"),
		0x0000: []byte("zero"),
	}

	log, err := rtmr.BuildRTMR0(cfg, false)
	require.NoError(t, err)

	want := []string{
		"td-hob", "cfv-image",
		"SecureBoot", "PK", "KEK", "db", "dbx",
		"separator",
		"BootOrder", "Boot0000", "Boot0002",
		"acpi-tables", "acpi-rsdp", "acpi-table-loader",
		"final-separator",
	}
	require.Equal(t, want, log.Names())
}

func TestBuildRTMR0IndirectIncludesSbatLevel(t *testing.T) {
	cfg := minimalPlatformConfig()
	log, err := rtmr.BuildRTMR0(cfg, true)
	require.NoError(t, err)

	require.Contains(t, log.Names(), "SbatLevel")
	// SbatLevel sits after the Boot#### run and before the ACPI events.
	names := log.Names()
	sbatIdx, acpiIdx := -1, -1
	for i, n := range names {
		if n == "SbatLevel" {
			sbatIdx = i
		}
		if n == "acpi-tables" {
			acpiIdx = i
		}
	}
	require.True(t, sbatIdx < acpiIdx)
}

func TestBuildRTMR0RejectsMissingMetadata(t *testing.T) {
	cfg := minimalPlatformConfig()
	cfg.Metadata = nil
	_, err := rtmr.BuildRTMR0(cfg, false)
	require.Error(t, err)
}

func TestBuildRTMR0DeterministicAcrossRuns(t *testing.T) {
	cfg := minimalPlatformConfig()
	a, err := rtmr.BuildRTMR0(cfg, false)
	require.NoError(t, err)
	b, err := rtmr.BuildRTMR0(cfg, false)
	require.NoError(t, err)
	require.Equal(t, a.Fold(), b.Fold())
}

func TestBuildRTMR0ChangingCmdlineOnlyAffectsRTMR2(t *testing.T) {
	cfg := minimalPlatformConfig()
	r0a, err := rtmr.BuildRTMR0(cfg, false)
	require.NoError(t, err)

	r2a, err := rtmr.BuildRTMR2Direct("a", nil)
	require.NoError(t, err)
	r2b, err := rtmr.BuildRTMR2Direct("b", nil)
	require.NoError(t, err)

	r0b, err := rtmr.BuildRTMR0(cfg, false) // unrelated to cmdline
	require.NoError(t, err)

	require.Equal(t, r0a.Fold(), r0b.Fold())
	require.NotEqual(t, r2a.Fold(), r2b.Fold())
}
