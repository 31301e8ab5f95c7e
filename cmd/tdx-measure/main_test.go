package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMemorySizeSuffixes(t *testing.T) {
	cases := map[string]uint64{
		"512M": 512 * 1024 * 1024,
		"1G":   1 << 30,
		"2G":   2 << 30,
		"4096": 4096,
		"64K":  64 * 1024,
	}
	for input, want := range cases {
		got, err := parseMemorySize(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}
}

func TestParseMemorySizeRejectsEmpty(t *testing.T) {
	_, err := parseMemorySize("")
	require.Error(t, err)
}

func TestFormatMemoryRoundTrips(t *testing.T) {
	for _, s := range []string{"1G", "512M", "64K"} {
		b, err := parseMemorySize(s)
		require.NoError(t, err)
		require.Equal(t, s, formatMemory(b))
	}
}

func TestResolveMetadataRejectsNeitherBootChain(t *testing.T) {
	cfg := &config{memory: 2 * 1024 * 1024 * 1024}
	_, err := resolveMetadata(cfg)
	require.Error(t, err)
}

func TestResolveMetadataRejectsBothBootChains(t *testing.T) {
	cfg := &config{memory: 2 * 1024 * 1024 * 1024, kernelPath: "kernel.bin", qcow2Path: "disk.qcow2"}
	_, err := resolveMetadata(cfg)
	require.Error(t, err)
}

func TestResolveMetadataDirectBootFlagDisambiguates(t *testing.T) {
	cfg := &config{
		memory:        2 * 1024 * 1024 * 1024,
		kernelPath:    "kernel.bin",
		qcow2Path:     "disk.qcow2",
		directBootSet: true,
		directBoot:    true,
	}
	meta, err := resolveMetadata(cfg)
	require.NoError(t, err)
	require.NotNil(t, meta.Direct)
	require.Nil(t, meta.Indirect)
}

func TestApplyOverridesPrefersExplicitMemoryFlag(t *testing.T) {
	cfg := &config{memory: 4 * 1024 * 1024 * 1024, memorySet: true, kernelPath: "kernel.bin"}
	meta := &Metadata{BootConfig: BootConfig{Memory: "1G"}}
	applyOverrides(meta, cfg)
	require.Equal(t, "4G", meta.BootConfig.Memory)
}

func TestApplyOverridesKeepsMetadataMemoryWhenFlagNotSet(t *testing.T) {
	cfg := &config{memory: 2 * 1024 * 1024 * 1024, kernelPath: "kernel.bin"}
	meta := &Metadata{BootConfig: BootConfig{Memory: "1G"}}
	applyOverrides(meta, cfg)
	require.Equal(t, "1G", meta.BootConfig.Memory)
}

func TestReadBootEntriesMatchesFourHexDigitNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Boot0000.bin"), []byte("zero"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Boot00AB.bin"), []byte("ab"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notaboot.txt"), []byte("ignored"), 0o644))

	entries, err := readBootEntries(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("zero"), entries[0x0000])
	require.Equal(t, []byte("ab"), entries[0x00AB])
}

func TestReadBootEntriesEmptyDirPath(t *testing.T) {
	entries, err := readBootEntries("")
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestResolveKeyProviderAcceptsKnownAlias(t *testing.T) {
	got := resolveKeyProvider("none")
	require.NotNil(t, got)
	require.Equal(t, knownKeyProviders["none"], hexString(got))
}

func TestResolveKeyProviderAcceptsHexWithPrefix(t *testing.T) {
	got := resolveKeyProvider("0xdead")
	require.Equal(t, []byte{0xde, 0xad}, got)
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[2*i] = hexDigits[v>>4]
		out[2*i+1] = hexDigits[v&0xf]
	}
	return string(out)
}
