package acpiset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/acpiset"
	"github.com/tdxpredict/tdx-measure/internal/hasher"
)

func TestDigestsMatchesPlainSha384(t *testing.T) {
	s := acpiset.Set{
		Tables:      []byte("tables"),
		RSDP:        []byte("rsdp"),
		TableLoader: []byte("loader"),
	}
	tables, rsdp, loader, err := s.Digests()
	require.NoError(t, err)
	require.Equal(t, hasher.Sum384([]byte("tables")), tables)
	require.Equal(t, hasher.Sum384([]byte("rsdp")), rsdp)
	require.Equal(t, hasher.Sum384([]byte("loader")), loader)
}

func TestDigestsRejectsMissingInput(t *testing.T) {
	cases := []acpiset.Set{
		{RSDP: []byte("r"), TableLoader: []byte("l")},
		{Tables: []byte("t"), TableLoader: []byte("l")},
		{Tables: []byte("t"), RSDP: []byte("r")},
	}
	for _, s := range cases {
		_, _, _, err := s.Digests()
		require.Error(t, err)
	}
}
