// Command tdx-measure predicts the TDX measurement registers (MRTD,
// RTMR0-2) a TD would produce for a given OVMF/TDVF firmware image and
// boot chain, without booting anything. It generalizes the teacher
// tools' single-purpose CLI (flat flag set, JSON metadata file, plain
// text or JSON report) to the direct and indirect (shim/GRUB) boot
// chains and to the platform-only/runtime-only partial-report modes.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tdxpredict/tdx-measure/internal/acpiset"
	"github.com/tdxpredict/tdx-measure/internal/eventlog"
	"github.com/tdxpredict/tdx-measure/internal/gpt"
	"github.com/tdxpredict/tdx-measure/internal/mrtd"
	"github.com/tdxpredict/tdx-measure/internal/pecoff"
	"github.com/tdxpredict/tdx-measure/internal/qcow2"
	"github.com/tdxpredict/tdx-measure/internal/report"
	"github.com/tdxpredict/tdx-measure/internal/rtmr"
	"github.com/tdxpredict/tdx-measure/internal/tdvf"
)

// runtimeOnlyMemory is the canonical memory size --runtime-only assumes
// for the kernel patch, per spec.md §4.4's "assuming the high-memory
// TD-HOB shape": runtime events are documented as memory-independent
// (§8 scenario 5), which this tool achieves by pinning the value the
// kernel patcher sees rather than threading the user's --memory flag
// through the runtime-only path.
const runtimeOnlyMemory = 8 * 1024 * 1024 * 1024

// knownKeyProviders mirrors the teacher's --mrkp convenience aliases for
// the key-provider digest folded into the optional mr_aggregated field.
var knownKeyProviders = map[string]string{
	"sgx-v0": "4888adb026ff91c1320c4f544a9f5d9e0561e13fc64947a10aa1556d0071b2cc",
	"none":   "3369c4d32b9f1320ebba5ce9892a283127b7e96e1d511d7f292e5d9ed2c10b8c",
}

// DirectBoot is the JSON shape of a direct-boot metadata entry.
type DirectBoot struct {
	Kernel  string `json:"kernel"`
	Initrd  string `json:"initrd"`
	Cmdline string `json:"cmdline"`
}

// IndirectBoot is the JSON shape of an indirect (shim/GRUB) boot
// metadata entry.
type IndirectBoot struct {
	Qcow2          string `json:"qcow2"`
	Cmdline        string `json:"cmdline"`
	MokList        string `json:"mok_list"`
	MokListTrusted string `json:"mok_list_trusted"`
	MokListX       string `json:"mok_list_x"`
	SbatLevel      string `json:"sbat_level"`
}

// BootConfig is the JSON shape of the boot_config object spec.md §6
// describes: platform shape shared by both boot chains.
type BootConfig struct {
	Cpus         uint32 `json:"cpus"`
	Memory       string `json:"memory"`
	Bios         string `json:"bios"`
	AcpiTables   string `json:"acpi_tables"`
	Rsdp         string `json:"rsdp"`
	TableLoader  string `json:"table_loader"`
	BootOrder    string `json:"boot_order"`
	PathBootXxxx string `json:"path_boot_xxxx"`
	Shim         string `json:"shim"`
	Grub         string `json:"grub"`
	SecureBoot   string `json:"secure_boot"`
	PK           string `json:"pk"`
	KEK          string `json:"kek"`
	DB           string `json:"db"`
	DBX          string `json:"dbx"`
}

// Metadata is the top-level JSON metadata file shape: boot_config plus
// exactly one of direct/indirect.
type Metadata struct {
	BootConfig BootConfig    `json:"boot_config"`
	Direct     *DirectBoot   `json:"direct,omitempty"`
	Indirect   *IndirectBoot `json:"indirect,omitempty"`
}

// memoryValue is a flag.Value parsing spec.md §6's K/M/G memory-size
// syntax (power-of-two: 1G = 2^30), generalizing the teacher's
// megabyte-only memoryValue.
type memoryValue uint64

func (m *memoryValue) String() string {
	return formatMemory(uint64(*m))
}

func (m *memoryValue) Set(value string) error {
	b, err := parseMemorySize(value)
	if err != nil {
		return err
	}
	*m = memoryValue(b)
	return nil
}

func formatMemory(bytes uint64) string {
	const (
		ki = 1024
		mi = ki * 1024
		gi = mi * 1024
	)
	switch {
	case bytes != 0 && bytes%gi == 0:
		return fmt.Sprintf("%dG", bytes/gi)
	case bytes != 0 && bytes%mi == 0:
		return fmt.Sprintf("%dM", bytes/mi)
	case bytes != 0 && bytes%ki == 0:
		return fmt.Sprintf("%dK", bytes/ki)
	default:
		return strconv.FormatUint(bytes, 10)
	}
}

func parseMemorySize(size string) (uint64, error) {
	size = strings.TrimSpace(strings.ToUpper(size))
	if size == "" {
		return 0, fmt.Errorf("empty memory size")
	}
	unit := size[len(size)-1:]
	numStr := size
	multiplier := uint64(1)
	switch unit {
	case "G":
		multiplier = 1 << 30
		numStr = size[:len(size)-1]
	case "M":
		multiplier = 1 << 20
		numStr = size[:len(size)-1]
	case "K":
		multiplier = 1 << 10
		numStr = size[:len(size)-1]
	}
	num, err := strconv.ParseUint(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory size %q: %w", size, err)
	}
	return num * multiplier, nil
}

type config struct {
	fwPath          string
	kernelPath      string
	initrdPath      string
	cmdline         string
	qcow2Path       string
	shimPath        string
	grubPath        string
	mokListPath     string
	mokListTPath    string
	mokListXPath    string
	sbatLevelPath   string
	acpiTablesPath  string
	rsdpPath        string
	tableLoaderPath string
	bootOrderPath   string
	bootDirPath     string
	metadataPath    string
	secureBootPath  string
	pkPath          string
	kekPath         string
	dbPath          string
	dbxPath         string

	memory         memoryValue
	memorySet      bool
	cpus           uint
	twoPassAddPage bool
	directBootSet  bool
	directBoot     bool
	platformOnly   bool
	runtimeOnly    bool
	jsonOutput     bool
	jsonFile       string
	transcriptFile string
	keyProvider    string
}

func parseFlags(args []string) (*config, error) {
	fs := flag.NewFlagSet("tdx-measure", flag.ContinueOnError)
	cfg := &config{memory: 2 * 1024 * 1024 * 1024, cpus: 1}

	fs.StringVar(&cfg.fwPath, "fw", "", "Path to OVMF/TDVF firmware image")
	fs.StringVar(&cfg.kernelPath, "kernel", "", "Path to kernel image (direct boot)")
	fs.StringVar(&cfg.initrdPath, "initrd", "", "Path to initrd image (direct boot)")
	fs.StringVar(&cfg.cmdline, "cmdline", "", "Kernel command line")
	fs.StringVar(&cfg.qcow2Path, "qcow2", "", "Path to QCOW2 disk image (indirect boot)")
	fs.StringVar(&cfg.shimPath, "shim", "", "Path to the shim PE image (indirect boot)")
	fs.StringVar(&cfg.grubPath, "grub", "", "Path to the GRUB PE image (indirect boot)")
	fs.StringVar(&cfg.mokListPath, "mok-list", "", "Path to the MokList variable payload")
	fs.StringVar(&cfg.mokListTPath, "mok-list-trusted", "", "Path to the MokListTrusted variable payload")
	fs.StringVar(&cfg.mokListXPath, "mok-list-x", "", "Path to the MokListX variable payload")
	fs.StringVar(&cfg.sbatLevelPath, "sbat-level", "", "Path to the SbatLevel variable payload")
	fs.StringVar(&cfg.acpiTablesPath, "acpi-tables", "", "Path to the synthesized ACPI tables blob")
	fs.StringVar(&cfg.rsdpPath, "rsdp", "", "Path to the synthesized RSDP blob")
	fs.StringVar(&cfg.tableLoaderPath, "table-loader", "", "Path to the synthesized ACPI table-loader blob")
	fs.StringVar(&cfg.bootOrderPath, "boot-order", "", "Path to the raw BootOrder variable payload")
	fs.StringVar(&cfg.bootDirPath, "path-boot-xxxx", "", "Directory containing Bootxxxx.bin variable payloads")
	fs.StringVar(&cfg.secureBootPath, "secure-boot", "", "Path to the raw SecureBoot variable payload")
	fs.StringVar(&cfg.pkPath, "pk", "", "Path to the raw PK variable payload")
	fs.StringVar(&cfg.kekPath, "kek", "", "Path to the raw KEK variable payload")
	fs.StringVar(&cfg.dbPath, "db", "", "Path to the raw db variable payload")
	fs.StringVar(&cfg.dbxPath, "dbx", "", "Path to the raw dbx variable payload")
	fs.StringVar(&cfg.metadataPath, "metadata", "", "Path to a JSON metadata file")
	fs.Var(&cfg.memory, "memory", "Memory size, e.g. 512M, 1G, 2G")
	fs.UintVar(&cfg.cpus, "cpu", 1, "Number of vCPUs")
	fs.BoolVar(&cfg.twoPassAddPage, "two-pass-add-pages", false, "Use the two-pass MEM.PAGE.ADD/MR.EXTEND ordering")
	fs.BoolVar(&cfg.platformOnly, "platform-only", false, "Emit only MRTD and RTMR0")
	fs.BoolVar(&cfg.runtimeOnly, "runtime-only", false, "Emit only RTMR1 and RTMR2")
	fs.BoolVar(&cfg.jsonOutput, "json", false, "Print the report as JSON")
	fs.StringVar(&cfg.jsonFile, "json-file", "", "Write the JSON report to this path")
	fs.StringVar(&cfg.transcriptFile, "transcript", "", "Write the per-event transcript (JSON) to this path")
	fs.StringVar(&cfg.keyProvider, "key-provider", "", "Key-provider measurement (hex, or a known alias) folded into mr_aggregated")

	var directBootStr string
	fs.StringVar(&directBootStr, "direct-boot", "", "Force direct (true) or indirect (false) boot selection")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if directBootStr != "" {
		b, err := strconv.ParseBool(directBootStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --direct-boot value %q: %w", directBootStr, err)
		}
		cfg.directBootSet = true
		cfg.directBoot = b
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "memory" {
			cfg.memorySet = true
		}
	})

	if cfg.platformOnly && cfg.runtimeOnly {
		return nil, fmt.Errorf("--platform-only and --runtime-only are mutually exclusive")
	}

	return cfg, nil
}

func main() {
	log := logrus.New()

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("parsing flags")
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("measurement failed")
		os.Exit(1)
	}
}

func run(cfg *config, log *logrus.Logger) error {
	meta, err := resolveMetadata(cfg)
	if err != nil {
		return fmt.Errorf("resolving metadata: %w", err)
	}

	fwData, err := os.ReadFile(meta.BootConfig.Bios)
	if err != nil {
		return fmt.Errorf("reading firmware: %w", err)
	}

	tdvfMeta, err := tdvf.ParseMetadata(fwData)
	if err != nil {
		return fmt.Errorf("parsing firmware metadata: %w", err)
	}

	memBytes, err := parseMemorySize(meta.BootConfig.Memory)
	if err != nil {
		return fmt.Errorf("parsing boot_config.memory: %w", err)
	}

	variant := mrtd.VariantOnePass
	if cfg.twoPassAddPage {
		variant = mrtd.VariantTwoPass
	}

	var regs report.Registers
	var logs []*eventlog.Log

	if !cfg.runtimeOnly {
		mrtdValue := mrtd.Compute(fwData, tdvfMeta, variant)
		regs.MRTD = &mrtdValue

		platformCfg, err := buildPlatformConfig(meta, tdvfMeta, fwData, meta.BootConfig.Cpus, memBytes)
		if err != nil {
			return fmt.Errorf("building platform config: %w", err)
		}
		rtmr0Log, err := rtmr.BuildRTMR0(platformCfg, meta.Indirect != nil)
		if err != nil {
			return fmt.Errorf("building RTMR0: %w", err)
		}
		rtmr0Value := rtmr0Log.Fold()
		regs.RTMR0 = &rtmr0Value
		logs = append(logs, rtmr0Log)
	}

	if !cfg.platformOnly {
		runtimeMemory := memBytes
		if cfg.runtimeOnly {
			runtimeMemory = runtimeOnlyMemory
		}

		rtmr1Log, rtmr2Log, err := buildRuntimeLogs(meta, runtimeMemory, log)
		if err != nil {
			return fmt.Errorf("building runtime registers: %w", err)
		}
		rtmr1Value := rtmr1Log.Fold()
		rtmr2Value := rtmr2Log.Fold()
		regs.RTMR1 = &rtmr1Value
		regs.RTMR2 = &rtmr2Value
		logs = append(logs, rtmr1Log, rtmr2Log)
	}

	if err := emit(cfg, regs, logs, log); err != nil {
		return err
	}
	return nil
}

func buildRuntimeLogs(meta *Metadata, memBytes uint64, log *logrus.Logger) (*eventlog.Log, *eventlog.Log, error) {
	switch {
	case meta.Direct != nil:
		kernelData, err := os.ReadFile(meta.Direct.Kernel)
		if err != nil {
			return nil, nil, fmt.Errorf("reading kernel: %w", err)
		}
		var initrdData []byte
		if meta.Direct.Initrd != "" {
			initrdData, err = os.ReadFile(meta.Direct.Initrd)
			if err != nil {
				return nil, nil, fmt.Errorf("reading initrd: %w", err)
			}
		}

		kernelImage, cmdline, initrdFromImage, err := extractUKIIfPresent(kernelData, meta.Direct.Cmdline)
		if err != nil {
			return nil, nil, err
		}
		if initrdFromImage != nil {
			log.WithField("kernel", meta.Direct.Kernel).Debug("extracted cmdline/initrd from Unified Kernel Image sections")
			initrdData = initrdFromImage
		}

		acpiBlobSize, err := fileSize(meta.BootConfig.AcpiTables)
		if err != nil {
			return nil, nil, fmt.Errorf("stat acpi_tables: %w", err)
		}

		rtmr1Log, err := rtmr.BuildRTMR1Direct(kernelImage, memBytes, uint32(len(initrdData)), acpiBlobSize)
		if err != nil {
			return nil, nil, fmt.Errorf("rtmr1 direct: %w", err)
		}
		rtmr2Log, err := rtmr.BuildRTMR2Direct(cmdline, initrdData)
		if err != nil {
			return nil, nil, fmt.Errorf("rtmr2 direct: %w", err)
		}
		return rtmr1Log, rtmr2Log, nil

	case meta.Indirect != nil:
		disk, err := readQcow2GPT(meta.Indirect.Qcow2)
		if err != nil {
			return nil, nil, fmt.Errorf("reading qcow2 disk: %w", err)
		}
		shimData, err := os.ReadFile(meta.BootConfig.Shim)
		if err != nil {
			return nil, nil, fmt.Errorf("reading shim image: %w", err)
		}
		grubData, err := os.ReadFile(meta.BootConfig.Grub)
		if err != nil {
			return nil, nil, fmt.Errorf("reading grub image: %w", err)
		}
		rtmr1Log, err := rtmr.BuildRTMR1Indirect(disk, rtmr.IndirectBootImages{Shim: shimData, Grub: grubData})
		if err != nil {
			return nil, nil, fmt.Errorf("rtmr1 indirect: %w", err)
		}

		mokList, err := readOptionalFile(meta.Indirect.MokList)
		if err != nil {
			return nil, nil, err
		}
		mokListTrusted, err := readOptionalFile(meta.Indirect.MokListTrusted)
		if err != nil {
			return nil, nil, err
		}
		mokListX, err := readOptionalFile(meta.Indirect.MokListX)
		if err != nil {
			return nil, nil, err
		}
		rtmr2Log, err := rtmr.BuildRTMR2Indirect(meta.Indirect.Cmdline, mokList, mokListTrusted, mokListX)
		if err != nil {
			return nil, nil, fmt.Errorf("rtmr2 indirect: %w", err)
		}
		return rtmr1Log, rtmr2Log, nil

	default:
		return nil, nil, fmt.Errorf("metadata names neither a direct nor an indirect boot chain")
	}
}

// extractUKIIfPresent detects a systemd-boot Unified Kernel Image (a PE
// with a .cmdline/.initrd/.linux section set) and, when found, pulls the
// bare kernel/cmdline/initrd out of it the way the teacher's
// extractUKISections does. A plain bzImage is returned unchanged.
func extractUKIIfPresent(image []byte, fallbackCmdline string) (kernel []byte, cmdline string, initrd []byte, err error) {
	sections, err := pecoff.Sections(image)
	if err != nil {
		// Not a PE at all: treat as a bare bzImage.
		return image, fallbackCmdline, nil, nil
	}
	hasLinux := false
	for _, s := range sections {
		if s == ".linux" {
			hasLinux = true
		}
	}
	if !hasLinux {
		return image, fallbackCmdline, nil, nil
	}

	linuxSection, err := pecoff.ExtractSection(image, ".linux")
	if err != nil {
		return nil, "", nil, fmt.Errorf("extracting .linux section: %w", err)
	}
	cmdline = fallbackCmdline
	if cmdlineSection, err := pecoff.ExtractSection(image, ".cmdline"); err == nil {
		cmdline = strings.TrimRight(string(cmdlineSection), "\x00")
	}
	if initrdSection, err := pecoff.ExtractSection(image, ".initrd"); err == nil {
		initrd = initrdSection
	}
	return linuxSection, cmdline, initrd, nil
}

func fileSize(path string) (uint32, error) {
	if path == "" {
		return 0, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint32(info.Size()), nil
}

func readOptionalFile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// readQcow2GPT opens a QCOW2-backed virtual disk and parses the GPT
// from its first megabyte, enough to cover the protective MBR, GPT
// header and a full 128-entry partition array.
func readQcow2GPT(path string) (*gpt.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := qcow2.Open(bytesReaderAt(raw))
	if err != nil {
		return nil, fmt.Errorf("opening qcow2 image: %w", err)
	}
	const probeSize = 1 << 20
	buf := make([]byte, probeSize)
	if _, err := img.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("reading disk head: %w", err)
	}
	return gpt.Parse(buf)
}

// bytesReaderAt adapts an in-memory byte slice to io.ReaderAt without
// pulling in a second copy via bytes.Reader's internal bookkeeping.
type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b)) {
		return 0, fmt.Errorf("qcow2: read offset %d out of range", off)
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, fmt.Errorf("qcow2: short read at offset %d", off)
	}
	return n, nil
}

func buildPlatformConfig(meta *Metadata, tdvfMeta *tdvf.Metadata, fwData []byte, cpus uint32, memBytes uint64) (rtmr.PlatformConfig, error) {
	acpiTables, err := os.ReadFile(meta.BootConfig.AcpiTables)
	if err != nil {
		return rtmr.PlatformConfig{}, fmt.Errorf("reading acpi_tables: %w", err)
	}
	rsdp, err := os.ReadFile(meta.BootConfig.Rsdp)
	if err != nil {
		return rtmr.PlatformConfig{}, fmt.Errorf("reading rsdp: %w", err)
	}
	tableLoader, err := os.ReadFile(meta.BootConfig.TableLoader)
	if err != nil {
		return rtmr.PlatformConfig{}, fmt.Errorf("reading table_loader: %w", err)
	}
	bootOrder, err := readOptionalFile(meta.BootConfig.BootOrder)
	if err != nil {
		return rtmr.PlatformConfig{}, err
	}

	bootVariables, err := readBootEntries(meta.BootConfig.PathBootXxxx)
	if err != nil {
		return rtmr.PlatformConfig{}, err
	}

	secureBoot, err := readOptionalFile(meta.BootConfig.SecureBoot)
	if err != nil {
		return rtmr.PlatformConfig{}, err
	}
	pk, err := readOptionalFile(meta.BootConfig.PK)
	if err != nil {
		return rtmr.PlatformConfig{}, err
	}
	kek, err := readOptionalFile(meta.BootConfig.KEK)
	if err != nil {
		return rtmr.PlatformConfig{}, err
	}
	db, err := readOptionalFile(meta.BootConfig.DB)
	if err != nil {
		return rtmr.PlatformConfig{}, err
	}
	dbx, err := readOptionalFile(meta.BootConfig.DBX)
	if err != nil {
		return rtmr.PlatformConfig{}, err
	}

	var sbatLevel []byte
	if meta.Indirect != nil {
		sbatLevel, err = readOptionalFile(meta.Indirect.SbatLevel)
		if err != nil {
			return rtmr.PlatformConfig{}, err
		}
	}

	return rtmr.PlatformConfig{
		CPUCount:      cpus,
		MemoryBytes:   memBytes,
		Firmware:      fwData,
		Metadata:      tdvfMeta,
		BootOrder:     bootOrder,
		BootVariables: bootVariables,
		SecureBoot: rtmr.SecureBootVariables{
			SecureBoot: secureBoot,
			PK:         pk,
			KEK:        kek,
			DB:         db,
			DBX:        dbx,
		},
		SbatLevel: sbatLevel,
		ACPI: acpiset.Set{
			Tables:      acpiTables,
			RSDP:        rsdp,
			TableLoader: tableLoader,
		},
	}, nil
}

var bootEntryName = regexp.MustCompile(`^Boot([0-9A-Fa-f]{4})\.bin$`)

// readBootEntries reads every Bootxxxx.bin file in dir into the
// boot-entry-index-keyed map BuildRTMR0 expects, per spec.md §6's
// path_boot_xxxx directory convention.
func readBootEntries(dir string) (map[uint16][]byte, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading boot entries directory: %w", err)
	}

	out := make(map[uint16][]byte)
	for _, e := range entries {
		m := bootEntryName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.ParseUint(m[1], 16, 16)
		if err != nil {
			return nil, fmt.Errorf("parsing boot entry index %q: %w", m[1], err)
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		out[uint16(idx)] = data
	}
	return out, nil
}

func resolveMetadata(cfg *config) (*Metadata, error) {
	meta := &Metadata{}
	if cfg.metadataPath != "" {
		data, err := os.ReadFile(cfg.metadataPath)
		if err != nil {
			return nil, fmt.Errorf("reading metadata file: %w", err)
		}
		if err := json.Unmarshal(data, meta); err != nil {
			return nil, fmt.Errorf("parsing metadata file: %w", err)
		}
	}

	applyOverrides(meta, cfg)

	if cfg.directBootSet {
		if cfg.directBoot {
			meta.Indirect = nil
		} else {
			meta.Direct = nil
		}
	}

	if meta.Direct == nil && meta.Indirect == nil {
		return nil, fmt.Errorf("metadata names neither direct nor indirect boot inputs")
	}
	if meta.Direct != nil && meta.Indirect != nil {
		return nil, fmt.Errorf("metadata names both direct and indirect boot inputs; pass --direct-boot to disambiguate")
	}
	return meta, nil
}

func applyOverrides(meta *Metadata, cfg *config) {
	if cfg.fwPath != "" {
		meta.BootConfig.Bios = cfg.fwPath
	}
	if cfg.acpiTablesPath != "" {
		meta.BootConfig.AcpiTables = cfg.acpiTablesPath
	}
	if cfg.rsdpPath != "" {
		meta.BootConfig.Rsdp = cfg.rsdpPath
	}
	if cfg.tableLoaderPath != "" {
		meta.BootConfig.TableLoader = cfg.tableLoaderPath
	}
	if cfg.bootOrderPath != "" {
		meta.BootConfig.BootOrder = cfg.bootOrderPath
	}
	if cfg.bootDirPath != "" {
		meta.BootConfig.PathBootXxxx = cfg.bootDirPath
	}
	if cfg.secureBootPath != "" {
		meta.BootConfig.SecureBoot = cfg.secureBootPath
	}
	if cfg.pkPath != "" {
		meta.BootConfig.PK = cfg.pkPath
	}
	if cfg.kekPath != "" {
		meta.BootConfig.KEK = cfg.kekPath
	}
	if cfg.dbPath != "" {
		meta.BootConfig.DB = cfg.dbPath
	}
	if cfg.dbxPath != "" {
		meta.BootConfig.DBX = cfg.dbxPath
	}
	if cfg.shimPath != "" {
		meta.BootConfig.Shim = cfg.shimPath
	}
	if cfg.grubPath != "" {
		meta.BootConfig.Grub = cfg.grubPath
	}
	if meta.BootConfig.Memory == "" || cfg.memorySet {
		meta.BootConfig.Memory = cfg.memory.String()
	}
	if meta.BootConfig.Cpus == 0 {
		meta.BootConfig.Cpus = uint32(cfg.cpus)
	}

	if cfg.kernelPath != "" || cfg.initrdPath != "" || cfg.cmdline != "" {
		if meta.Direct == nil {
			meta.Direct = &DirectBoot{}
		}
		if cfg.kernelPath != "" {
			meta.Direct.Kernel = cfg.kernelPath
		}
		if cfg.initrdPath != "" {
			meta.Direct.Initrd = cfg.initrdPath
		}
		if cfg.cmdline != "" {
			meta.Direct.Cmdline = cfg.cmdline
		}
	}

	if cfg.qcow2Path != "" || cfg.mokListPath != "" || cfg.mokListTPath != "" || cfg.mokListXPath != "" || cfg.sbatLevelPath != "" {
		if meta.Indirect == nil {
			meta.Indirect = &IndirectBoot{}
		}
		if cfg.qcow2Path != "" {
			meta.Indirect.Qcow2 = cfg.qcow2Path
		}
		if cfg.mokListPath != "" {
			meta.Indirect.MokList = cfg.mokListPath
		}
		if cfg.mokListTPath != "" {
			meta.Indirect.MokListTrusted = cfg.mokListTPath
		}
		if cfg.mokListXPath != "" {
			meta.Indirect.MokListX = cfg.mokListXPath
		}
		if cfg.sbatLevelPath != "" {
			meta.Indirect.SbatLevel = cfg.sbatLevelPath
		}
	}
}

func emit(cfg *config, regs report.Registers, logs []*eventlog.Log, log *logrus.Logger) error {
	if cfg.transcriptFile != "" {
		transcript := report.Transcript(logs...)
		data, err := json.MarshalIndent(transcript, "", "  ")
		if err != nil {
			log.WithError(err).Warn("encoding transcript")
		} else if err := os.WriteFile(cfg.transcriptFile, data, 0o644); err != nil {
			log.WithError(err).Warn("writing transcript file")
		}
	}

	var out []byte
	var err error
	if cfg.jsonOutput || cfg.jsonFile != "" {
		out, err = jsonReportWithExtras(regs, cfg.keyProvider)
		if err != nil {
			return err
		}
	} else {
		out = []byte(report.Text(regs))
	}

	if cfg.jsonFile != "" {
		if err := os.WriteFile(cfg.jsonFile, out, 0o644); err != nil {
			return fmt.Errorf("writing json file: %w", err)
		}
	}
	if cfg.jsonFile == "" || cfg.jsonOutput {
		fmt.Print(string(out))
		if !strings.HasSuffix(string(out), "\n") {
			fmt.Println()
		}
	}
	return nil
}

// jsonReportWithExtras extends report.JSON with the optional aggregate
// identity digests (spec.md's supplemented mr_aggregated/mr_image
// fields), computed only when every register that feeds them is
// present, i.e. on a full (non-partial) run.
func jsonReportWithExtras(regs report.Registers, keyProviderFlag string) ([]byte, error) {
	base, err := report.JSON(regs)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(base, &obj); err != nil {
		return nil, err
	}

	keyProvider := resolveKeyProvider(keyProviderFlag)
	if agg, err := report.CalculateMrAggregated(regs, keyProvider); err == nil {
		obj["mr_aggregated"] = agg
	}
	if img, err := report.CalculateMrImage(regs); err == nil {
		obj["mr_image"] = img
	}

	return json.MarshalIndent(obj, "", "  ")
}

func resolveKeyProvider(flagValue string) []byte {
	if known, ok := knownKeyProviders[flagValue]; ok {
		flagValue = known
	}
	flagValue = strings.TrimPrefix(flagValue, "0x")
	b, err := hex.DecodeString(flagValue)
	if err != nil {
		return nil
	}
	return b
}
