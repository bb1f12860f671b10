package keyexpr

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

func TestParseRawCompressed(t *testing.T) {
	expr := "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	k, err := Parse(expr, Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)
	require.False(t, k.IsRanged())
	require.False(t, k.IsMultipath())

	ki, err := k.Resolve(nil, nil)
	require.NoError(t, err)
	require.Len(t, ki.PubKey, 33)
}

func TestParseTaprootXOnly(t *testing.T) {
	expr := "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	k, err := Parse(expr, Options{IsTaproot: true, Network: &chaincfg.MainNetParams})
	require.NoError(t, err)

	ki, err := k.Resolve(nil, nil)
	require.NoError(t, err)
	require.Len(t, ki.PubKey, 32)
}

func TestParseWildcardRequiresIndex(t *testing.T) {
	xpub := "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29" +
		"ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	k, err := Parse(xpub+"/0/*", Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)
	require.True(t, k.IsRanged())

	_, err = k.Resolve(nil, nil)
	require.Error(t, err)

	idx := uint32(3)
	ki, err := k.Resolve(&idx, nil)
	require.NoError(t, err)
	require.Len(t, ki.PubKey, 33)
	require.Equal(t, "m/0/3", ki.FullPath)
}

func TestParseHardenedOverflow(t *testing.T) {
	xpub := "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29" +
		"ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	_, err := Parse(xpub+"/2147483648'", Options{Network: &chaincfg.MainNetParams})
	require.Error(t, err)
}

func TestParseMultipath(t *testing.T) {
	xpub := "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29" +
		"ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"
	k, err := Parse(xpub+"/<0;1>/*", Options{Network: &chaincfg.MainNetParams})
	require.NoError(t, err)
	require.True(t, k.IsMultipath())
	require.True(t, k.IsRanged())

	idx := uint32(0)
	_, err = k.Resolve(&idx, nil)
	require.Error(t, err)

	change := uint32(1)
	ki, err := k.Resolve(&idx, &change)
	require.NoError(t, err)
	require.Equal(t, "m/1/0", ki.FullPath)
}
