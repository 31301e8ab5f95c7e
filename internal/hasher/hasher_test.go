package hasher_test

import (
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

func TestExtendDigestMatchesManualChain(t *testing.T) {
	var r hasher.Register
	d1 := hasher.Sum384([]byte("a"))
	d2 := hasher.Sum384([]byte("b"))

	r = hasher.ExtendDigest(r, d1)
	r = hasher.ExtendDigest(r, d2)

	h := sha512.New384()
	h.Write(make([]byte, 48))
	h.Write(d1[:])
	step1 := h.Sum(nil)

	h2 := sha512.New384()
	h2.Write(step1)
	h2.Write(d2[:])
	want := h2.Sum(nil)

	require.Equal(t, want, r[:])
}

func TestReplayLogEmptyIsZero(t *testing.T) {
	r := hasher.ReplayLog(nil)
	require.Equal(t, hasher.Register{}, r)
}

func TestReplayLogMatchesSequentialExtend(t *testing.T) {
	digests := []hasher.Register{
		hasher.Sum384([]byte("x")),
		hasher.Sum384([]byte("y")),
		hasher.Sum384([]byte("z")),
	}
	got := hasher.ReplayLog(digests)

	var want hasher.Register
	for _, d := range digests {
		want = hasher.ExtendDigest(want, d)
	}
	require.Equal(t, want, got)
}

func TestPadTo(t *testing.T) {
	out := hasher.PadTo([]byte{1, 2, 3}, 8)
	require.Len(t, out, 8)
	require.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0}, out)
}

func TestPadToPanicsOnOversized(t *testing.T) {
	require.Panics(t, func() {
		hasher.PadTo([]byte{1, 2, 3, 4}, 2)
	})
}
