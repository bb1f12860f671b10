package taproot

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// OutputKey computes the BIP341 tweaked taproot output key for an internal
// x-only key and a (possibly nil, for key-path-only) script tree, returning
// the output key's x-only bytes and its y-coordinate parity.
func OutputKey(internalXOnly []byte, root *Node) (outputXOnly []byte, parityOdd bool, err error) {
	if len(internalXOnly) != 32 {
		return nil, false, &Error{Reason: "internal key must be 32 bytes x-only"}
	}
	internalKey, err := schnorr.ParsePubKey(internalXOnly)
	if err != nil {
		return nil, false, fmt.Errorf("taproot: invalid internal key: %w", err)
	}

	outputKey := txscript.ComputeTaprootOutputKey(internalKey, MerkleRoot(root))
	compressed := outputKey.SerializeCompressed()

	return compressed[1:], compressed[0] == secp256k1.PubKeyFormatCompressedOdd, nil
}

// ScriptPubKey returns the `OP_1 <32-byte Q>` witness program for the given
// internal key and tree.
func ScriptPubKey(internalXOnly []byte, root *Node) ([]byte, error) {
	outputXOnly, _, err := OutputKey(internalXOnly, root)
	if err != nil {
		return nil, err
	}
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(outputXOnly).
		Script()
}
