package miniscript

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/chantools/descriptors/keyexpr"
)

const (
	pubA = "02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
	pubB = "02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9"
)

func mustExpand(t *testing.T, raw string, opts keyexpr.Options) *Expansion {
	t.Helper()
	e, err := Expand(raw, opts, nil, nil)
	require.NoError(t, err)
	return e
}

func TestExpandAssignsPlaceholdersInOrder(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	e := mustExpand(t, "and_v(v:pk("+pubA+"),pk("+pubB+"))", opts)
	require.Equal(t, "and_v(v:pk(@0),pk(@1))", e.Text)
	require.Len(t, e.Map, 2)
	require.Equal(t, pubA, hex.EncodeToString(e.Map["@0"].PubKey))
	require.Equal(t, pubB, hex.EncodeToString(e.Map["@1"].PubKey))
}

func TestSortedMultiOrdersByPubKeyBytes(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	e := mustExpand(t, "sortedmulti(2,"+pubB+","+pubA+")", opts)

	first := e.Map["@0"].PubKey
	second := e.Map["@1"].PubKey
	require.Equal(t, pubA, hex.EncodeToString(first))
	require.Equal(t, pubB, hex.EncodeToString(second))
}

func TestSortedMultiRejectsDuplicateKeys(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	_, err := Expand("sortedmulti(2,"+pubA+","+pubA+")", opts, nil, nil)
	require.Error(t, err)
	require.IsType(t, &MiniscriptSanityError{}, err)
}

func TestCompileAndVOfTwoKeysAndOlder(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	raw := "and_v(and_v(v:pk(" + pubA + "),v:pk(" + pubB + ")),older(5))"
	e := mustExpand(t, raw, opts)

	script, sane, err := DefaultEngine{}.Compile(e.Node, e.Map)
	require.NoError(t, err)
	require.True(t, sane)
	require.NotEmpty(t, script)
}

func TestCompileSha256Fragment(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	digest := sha256.Sum256([]byte("hello"))
	raw := "and_v(v:sha256(" + hex.EncodeToString(digest[:]) + "),pk(" + pubA + "))"
	e := mustExpand(t, raw, opts)

	script, sane, err := DefaultEngine{}.Compile(e.Node, e.Map)
	require.NoError(t, err)
	require.True(t, sane)
	require.NotEmpty(t, script)
}

func TestSatisfyAndVWithOlder(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	raw := "and_v(and_v(v:pk(" + pubA + "),v:pk(" + pubB + ")),older(5))"
	e := mustExpand(t, raw, opts)

	sigA := []byte{0x01, 0x02, 0x03}
	sigB := []byte{0x04, 0x05}
	sat, err := Satisfy(e.Node, e.Map, Knowns{
		Signatures: map[string][]byte{"@0": sigA, "@1": sigB},
	})
	require.NoError(t, err)

	// Serialized witness order: the second key's signature is consumed
	// last, so it sits at the bottom of the stack.
	require.Equal(t, [][]byte{sigB, sigA}, sat.Stack)
	require.NotNil(t, sat.Sequence)
	require.EqualValues(t, 5, *sat.Sequence)
}

func TestSatisfyMissingSignatureFails(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	e := mustExpand(t, "pk("+pubA+")", opts)

	_, err := Satisfy(e.Node, e.Map, Knowns{})
	require.Error(t, err)
	require.IsType(t, &SatisfactionError{}, err)
}

func TestSatisfyOrIUsesSatisfiableBranch(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	e := mustExpand(t, "or_i(pk("+pubA+"),pk("+pubB+"))", opts)

	sigB := []byte{0xaa}
	sat, err := Satisfy(e.Node, e.Map, Knowns{
		Signatures: map[string][]byte{"@1": sigB},
	})
	require.NoError(t, err)
	require.Equal(t, [][]byte{sigB, falseMarker}, sat.Stack)
}

func TestDiscoverTimeConstraints(t *testing.T) {
	opts := keyexpr.Options{IsSegwit: true, Network: &chaincfg.MainNetParams}
	raw := "and_v(v:pk(" + pubA + "),after(500000))"
	e := mustExpand(t, raw, opts)

	lockTime, sequence, err := DiscoverTimeConstraints(e.Node, e.Map)
	require.NoError(t, err)
	require.Nil(t, sequence)
	require.NotNil(t, lockTime)
	require.EqualValues(t, 500000, *lockTime)
}
