package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var testCases = []struct {
	descriptor  string
	expectedSum string
}{{
	descriptor:  "addr(mkmZxiEcEd8ZqjQWVZuC6so5dFMKEFpN2j)",
	expectedSum: "#02wpgw69",
}, {
	descriptor:  "tr(cRhCT5vC5NdnSrQ2Jrah6NPCcth41uT8DWFmA6uD8R4x2ufucnYX)",
	expectedSum: "#gwfmkgga",
}}

func TestChecksum(t *testing.T) {
	for _, tc := range testCases {
		sum, err := Create(tc.descriptor)
		require.NoError(t, err)
		require.Equal(t, tc.descriptor+tc.expectedSum, sum)

		require.NoError(t, Verify(sum, true))
	}
}

func TestChecksumCorruption(t *testing.T) {
	sum, err := Create(testCases[0].descriptor)
	require.NoError(t, err)

	corruptedBody := "X" + sum[1:]
	require.Error(t, Verify(corruptedBody, true))

	corrupted := sum[:len(sum)-1] + "z"
	if corrupted == sum {
		corrupted = sum[:len(sum)-1] + "q"
	}
	require.Error(t, Verify(corrupted, true))
}

func TestChecksumMissing(t *testing.T) {
	require.NoError(t, Verify("wpkh(03aa)", false))
	require.Error(t, Verify("wpkh(03aa)", true))
}
