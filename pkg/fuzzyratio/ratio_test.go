package fuzzyratio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRatioIdenticalStrings(t *testing.T) {
	require.Equal(t, 100, Ratio("mistborn", "mistborn"))
}

func TestRatioEmptyStrings(t *testing.T) {
	require.Equal(t, 100, Ratio("", ""))
	require.Equal(t, 0, Ratio("a", ""))
}

func TestPartialRatioFindsSubstring(t *testing.T) {
	r := PartialRatio("mistborn", "mistborn: the final empire")
	require.Equal(t, 100, r)
}

func TestTokenSetRatioToleratesReordering(t *testing.T) {
	r := TokenSetRatio("the final empire mistborn", "mistborn the final empire")
	require.Equal(t, 100, r)
}

func TestBestIsMonotonicUpperBound(t *testing.T) {
	a, b := "mistborn", "mistborn: the final empire"
	best := Best(a, b)
	require.GreaterOrEqual(t, best, Ratio(a, b))
	require.GreaterOrEqual(t, best, PartialRatio(a, b))
	require.GreaterOrEqual(t, best, TokenSetRatio(a, b))
}

func TestWRatioDifferentLengthsPrefersTokenOrPartial(t *testing.T) {
	r := WRatio("mistborn", "mistborn: the final empire, book one of the original trilogy")
	require.Greater(t, r, 50)
}
