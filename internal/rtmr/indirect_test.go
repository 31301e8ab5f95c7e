package rtmr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/gpt"
	"github.com/tdxpredict/tdx-measure/internal/rtmr"
)

func TestBuildRTMR1IndirectRejectsBadShim(t *testing.T) {
	table := &gpt.Table{}
	_, err := rtmr.BuildRTMR1Indirect(table, rtmr.IndirectBootImages{Shim: []byte("not a pe"), Grub: []byte("not a pe")})
	require.Error(t, err)
}

func TestBuildRTMR2IndirectEventNames(t *testing.T) {
	log, err := rtmr.BuildRTMR2Indirect("root=/dev/sda1", []byte("a"), []byte("b"), []byte("c"))
	require.NoError(t, err)
	require.Equal(t, []string{"cmdline", "MokList", "MokListTrusted", "MokListX"}, log.Names())
}

func TestBuildRTMR2IndirectDiffersByMokList(t *testing.T) {
	a, err := rtmr.BuildRTMR2Indirect("cmd", []byte("list-a"), nil, nil)
	require.NoError(t, err)
	b, err := rtmr.BuildRTMR2Indirect("cmd", []byte("list-b"), nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, a.Fold(), b.Fold())
}
