package guid_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/guid"
)

func TestParseMatchesKnownWireEncoding(t *testing.T) {
	// SecureBoot vendor GUID, cross-checked against the teacher tools'
	// encodeGUID("8BE4DF61-93CA-11D2-AA0D-00E098032B8C").
	g, err := guid.Parse("8BE4DF61-93CA-11D2-AA0D-00E098032B8C")
	require.NoError(t, err)

	want, err := hex.DecodeString("61dfe48bca93d211aa0d00e098032b8c")
	require.NoError(t, err)
	require.Equal(t, want, g.Bytes())
}

func TestRoundTrip(t *testing.T) {
	const s = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	g, err := guid.Parse(s)
	require.NoError(t, err)
	require.Equal(t, s, g.String())
}

func TestIsZero(t *testing.T) {
	var g guid.GUID
	require.True(t, g.IsZero())
	g2, _ := guid.Parse("00000000-0000-0000-0000-000000000001")
	require.False(t, g2.IsZero())
}
