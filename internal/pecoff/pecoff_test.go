package pecoff_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tdxpredict/tdx-measure/internal/pecoff"
)

func TestDigestRejectsNonPE(t *testing.T) {
	_, err := pecoff.Digest([]byte("not a pe file"))
	require.Error(t, err)
}

func TestExtractSectionRejectsNonPE(t *testing.T) {
	_, err := pecoff.ExtractSection([]byte{0x00, 0x01, 0x02}, ".linux")
	require.Error(t, err)
}

func TestSectionsRejectsNonPE(t *testing.T) {
	_, err := pecoff.Sections(nil)
	require.Error(t, err)
}

func TestDigestRejectsEmptyImage(t *testing.T) {
	_, err := pecoff.Digest(nil)
	require.Error(t, err)
}
