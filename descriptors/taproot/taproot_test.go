package taproot

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/lightninglabs/chantools/descriptors/keyexpr"
	"github.com/lightninglabs/chantools/descriptors/miniscript"
)

const (
	xOnlyA = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	xOnlyB = "c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5"
)

func TestParseTreeSingleLeaf(t *testing.T) {
	root, err := ParseTree("pk(" + xOnlyA + ")")
	require.NoError(t, err)
	require.NotNil(t, root.Leaf)
	require.Equal(t, "pk("+xOnlyA+")", root.Leaf.Source)
}

func TestParseTreeBranch(t *testing.T) {
	root, err := ParseTree("{pk(" + xOnlyA + "),pk(" + xOnlyB + ")}")
	require.NoError(t, err)
	require.Nil(t, root.Leaf)
	require.NotNil(t, root.Left.Leaf)
	require.NotNil(t, root.Right.Leaf)
}

func TestCompileTreeAndOutputKey(t *testing.T) {
	root, err := ParseTree("{pk(" + xOnlyA + "),pk(" + xOnlyB + ")}")
	require.NoError(t, err)

	opts := keyexpr.Options{IsSegwit: true, IsTaproot: true, Network: &chaincfg.MainNetParams}
	require.NoError(t, CompileTree(root, opts, nil, nil))

	leaves := Leaves(root)
	require.Len(t, leaves, 2)
	for _, l := range leaves {
		require.NotEmpty(t, l.Script)
	}

	outXOnly, _, err := OutputKey(mustHex(t, xOnlyA), root)
	require.NoError(t, err)
	require.Len(t, outXOnly, 32)

	spk, err := ScriptPubKey(mustHex(t, xOnlyA), root)
	require.NoError(t, err)
	require.Len(t, spk, 34)
	require.Equal(t, byte(0x51), spk[0])
	require.Equal(t, byte(0x20), spk[1])
}

func TestControlBlockLength(t *testing.T) {
	root, err := ParseTree("{pk(" + xOnlyA + "),pk(" + xOnlyB + ")}")
	require.NoError(t, err)
	opts := keyexpr.Options{IsSegwit: true, IsTaproot: true, Network: &chaincfg.MainNetParams}
	require.NoError(t, CompileTree(root, opts, nil, nil))

	leaves := Leaves(root)
	proof := MerkleProof(root, leaves[0])
	require.Len(t, proof, 1)

	_, parityOdd, err := OutputKey(mustHex(t, xOnlyA), root)
	require.NoError(t, err)

	cb, err := ControlBlock(mustHex(t, xOnlyA), parityOdd, leaves[0], proof)
	require.NoError(t, err)
	require.Len(t, cb, 33+32*1)
}

func TestSelectLeafByHintText(t *testing.T) {
	root, err := ParseTree("{pk(" + xOnlyA + "),pk(" + xOnlyB + ")}")
	require.NoError(t, err)
	opts := keyexpr.Options{IsSegwit: true, IsTaproot: true, Network: &chaincfg.MainNetParams}
	require.NoError(t, CompileTree(root, opts, nil, nil))

	sel, err := SelectLeaf(root, &LeafHint{Miniscript: "pk(" + xOnlyB + ")"}, miniscript.Knowns{
		Signatures: map[string][]byte{"@0": {0xaa}},
	})
	require.NoError(t, err)
	require.Equal(t, "pk("+xOnlyB+")", sel.Leaf.Source)
}

func TestSelectLeafNoSatisfiable(t *testing.T) {
	root, err := ParseTree("{pk(" + xOnlyA + "),pk(" + xOnlyB + ")}")
	require.NoError(t, err)
	opts := keyexpr.Options{IsSegwit: true, IsTaproot: true, Network: &chaincfg.MainNetParams}
	require.NoError(t, CompileTree(root, opts, nil, nil))

	_, err = SelectLeaf(root, nil, miniscript.Knowns{})
	require.Error(t, err)
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
