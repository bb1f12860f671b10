package descriptors

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

const (
	testXpub = "tpubD6NzVbkrYhZ4WcvYMuJAeohQ1XEMGBdJnQgKkKWcL9akTaKUZRgXq6uAyp6" +
		"xgK8L6tcvwdy3cGf8cb4RvxBCFdG8QaFWE6ktx4KBtdkwUMX"
	testPubKey = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	testXOnlyA = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	testXOnlyB = "c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
)

func testOptions() Options {
	return Options{Network: &chaincfg.TestNet3Params}
}

func TestParsePkh(t *testing.T) {
	out, err := Parse("pkh("+testPubKey+")", testOptions())
	require.NoError(t, err)

	spk, err := out.GetScriptPubKey()
	require.NoError(t, err)
	require.Len(t, spk, 25)

	addr, err := out.GetAddress()
	require.NoError(t, err)
	require.NotEmpty(t, addr)

	require.Equal(t, GuessedOutput{IsPKH: true}, out.GuessOutput())
}

func TestParseWpkh(t *testing.T) {
	out, err := Parse("wpkh("+testPubKey+")", testOptions())
	require.NoError(t, err)

	spk, err := out.GetScriptPubKey()
	require.NoError(t, err)
	require.Len(t, spk, 22)
	require.Equal(t, GuessedOutput{IsWPKH: true}, out.GuessOutput())
}

func TestParseShWpkh(t *testing.T) {
	raw := "sh(wpkh([d34db33f/49'/0'/0']" + testXpub + "/1/2/3/4/5))"
	out, err := Parse(raw, testOptions())
	require.NoError(t, err)

	spk, err := out.GetScriptPubKey()
	require.NoError(t, err)
	require.Len(t, spk, 23)

	redeemScript, ok := out.GetRedeemScript()
	require.True(t, ok)
	require.Len(t, redeemScript, 22)
	require.Equal(t, GuessedOutput{IsSH: true}, out.GuessOutput())
}

func TestParseWshSatisfaction(t *testing.T) {
	raw := "wsh(pk(" + testPubKey + "))"
	out, err := Parse(raw, testOptions())
	require.NoError(t, err)

	witnessScript, ok := out.GetWitnessScript()
	require.True(t, ok)
	require.NotEmpty(t, witnessScript)

	// No signature known yet: unsatisfiable.
	_, err = out.GetScriptSatisfaction(nil)
	require.Error(t, err)

	pubKeyBytes := mustHex(t, testPubKey)
	fakeSig := make([]byte, 71)
	sat, err := out.GetScriptSatisfaction(
		[]Signature{{PubKey: pubKeyBytes, Sig: fakeSig}},
	)
	require.NoError(t, err)
	require.Equal(t, [][]byte{fakeSig}, sat.Stack)
}

func TestParseTrKeyOnly(t *testing.T) {
	out, err := Parse("tr("+testXOnlyA+")", testOptions())
	require.NoError(t, err)

	addr, err := out.GetAddress()
	require.NoError(t, err)
	require.NotEmpty(t, addr)
	require.Equal(t, GuessedOutput{IsTR: true}, out.GuessOutput())

	// A key-path-only output has no satisfiable script tree.
	_, err = out.GetTapScriptSatisfaction(nil, nil)
	require.Error(t, err)
}

func TestParseTrTreeSatisfiesSignedLeaf(t *testing.T) {
	raw := "tr(" + testXOnlyA + ",{pk(" + testXOnlyA + "),pk(" + testXOnlyB + ")})"
	out, err := Parse(raw, testOptions())
	require.NoError(t, err)

	spk, err := out.GetScriptPubKey()
	require.NoError(t, err)
	require.Len(t, spk, 34)

	addr, err := out.GetAddress()
	require.NoError(t, err)
	require.NotEmpty(t, addr)

	fakeSig := make([]byte, 64)
	tsat, err := out.GetTapScriptSatisfaction(
		[]Signature{{PubKey: mustHex(t, testXOnlyA), Sig: fakeSig}}, nil,
	)
	require.NoError(t, err)
	require.Equal(t, [][]byte{fakeSig}, tsat.StackItems)
	require.Len(t, tsat.ControlBlock, 33+32)
}

func TestRangedParity(t *testing.T) {
	opts := testOptions()
	idx := uint32(7)
	opts.Index = &idx

	ranged, err := Parse("wpkh("+testXpub+"/0/*)", opts)
	require.NoError(t, err)

	fixed, err := Parse("wpkh("+testXpub+"/0/7)", testOptions())
	require.NoError(t, err)

	rangedSpk, err := ranged.GetScriptPubKey()
	require.NoError(t, err)
	fixedSpk, err := fixed.GetScriptPubKey()
	require.NoError(t, err)
	require.Equal(t, fixedSpk, rangedSpk)
}

func TestMultipathEquivalence(t *testing.T) {
	opts := testOptions()
	idx, change := uint32(2), uint32(1)
	opts.Index = &idx
	opts.Change = &change

	multi, err := Parse("wpkh("+testXpub+"/<0;1>/*)", opts)
	require.NoError(t, err)

	single, err := Parse("wpkh("+testXpub+"/1/2)", testOptions())
	require.NoError(t, err)

	multiSpk, err := multi.GetScriptPubKey()
	require.NoError(t, err)
	singleSpk, err := single.GetScriptPubKey()
	require.NoError(t, err)
	require.Equal(t, singleSpk, multiSpk)
}

func TestIndexOnNonRangedDescriptor(t *testing.T) {
	opts := testOptions()
	idx := uint32(0)
	opts.Index = &idx

	_, err := Parse("wpkh("+testPubKey+")", opts)
	require.Error(t, err)
}

func TestParseAddrShAssumesSegwit(t *testing.T) {
	opts := testOptions()

	scriptHash := make([]byte, 20)
	scriptHash[0] = 0xab
	btcAddr, err := btcutil.NewAddressScriptHashFromHash(scriptHash, opts.network())
	require.NoError(t, err)
	addr := btcAddr.EncodeAddress()

	legacy, err := Parse("addr("+addr+")", opts)
	require.NoError(t, err)
	require.Equal(t, GuessedOutput{IsSH: true}, legacy.GuessOutput())
	require.Nil(t, legacy.GetLockTime())

	opts.ShAddressAssumesSegwit = true
	segwit, err := Parse("addr("+addr+")", opts)
	require.NoError(t, err)
	require.Equal(t, GuessedOutput{IsSH: true}, segwit.GuessOutput())
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
