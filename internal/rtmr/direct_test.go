package rtmr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/hasher"
	"github.com/tdxpredict/tdx-measure/internal/rtmr"
	"github.com/tdxpredict/tdx-measure/internal/uefivar"
)

// Scenario 2 from spec.md §8: direct boot, cmdline = "a", zero-byte
// initrd -> RTMR[2] = extend(extend(0, SHA384("a\0" UTF-16LE)), SHA384("")).
func TestBuildRTMR2DirectMatchesSeedVector(t *testing.T) {
	log, err := rtmr.BuildRTMR2Direct("a", nil)
	require.NoError(t, err)

	cmdlineDigest, err := uefivar.CmdlineMeasurement("a")
	require.NoError(t, err)

	var want hasher.Register
	want = hasher.ExtendDigest(want, cmdlineDigest)
	want = hasher.ExtendDigest(want, hasher.Sum384(nil))

	require.Equal(t, want, log.Fold())
}

func TestBuildRTMR2DirectEventNames(t *testing.T) {
	log, err := rtmr.BuildRTMR2Direct("console=ttyS0", []byte("initrd-bytes"))
	require.NoError(t, err)
	require.Equal(t, []string{"cmdline", "initrd"}, log.Names())
}

func TestBuildRTMR1DirectRejectsShortImage(t *testing.T) {
	_, err := rtmr.BuildRTMR1Direct(make([]byte, 16), 2*1024*1024*1024, 0, 0x20000)
	require.Error(t, err)
}

func TestBuildRTMR1DirectRejectsTruncatedGzip(t *testing.T) {
	_, err := rtmr.BuildRTMR1Direct([]byte{0x1F, 0x8B, 0x00, 0x00}, 2*1024*1024*1024, 0, 0x20000)
	require.Error(t, err)
}
