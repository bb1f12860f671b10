package psbtutil

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	// SequenceFinal carries no meaning beyond "not participating in
	// BIP125 replace-by-fee or BIP68 relative locktime".
	SequenceFinal = wire.MaxTxInSequenceNum
	// SequenceNoRBF signals BIP68/BIP65 opt-out of replace-by-fee, the
	// default nSequence whenever a locktime is active.
	SequenceNoRBF = uint32(0xFFFFFFFE)
	// SequenceRBF signals BIP125 replace-by-fee opt-in.
	SequenceRBF = uint32(0xFFFFFFFD)
)

// PrevOut pins what the caller knows about the input's previous output:
// either the full previous transaction (TxHex, mandatory for non-segwit
// spends) or, for segwit-only inputs, just TxID/Value.
type PrevOut struct {
	TxHex []byte
	TxID  *chainhash.Hash
	Value int64
}

// InputParams is everything AddInput needs about the Output being spent;
// the descriptors package fills this in from an Output's scriptPubKey,
// expansion map and taproot tree.
type InputParams struct {
	ScriptPubKey []byte
	IsSegwit     bool

	RedeemScript  []byte
	WitnessScript []byte

	Bip32Derivation []*psbt.Bip32Derivation

	TapInternalKey     []byte
	TapMerkleRoot      []byte
	TapBip32Derivation []*psbt.TaprootBip32Derivation
	TapLeafScript      []*psbt.TaprootTapLeafScript

	// LockTime is this Output's satisfaction-prescribed locktime, nil if
	// none.
	LockTime *uint32
	// Sequence is this Output's satisfaction-prescribed sequence, nil to
	// let AddInput pick one from LockTime/RBF per spec.md §4.10 step 4.
	Sequence *uint32
	// RBF selects 0xFFFFFFFD over 0xFFFFFFFE when a locktime is active
	// and Sequence is nil.
	RBF bool

	// Warn receives non-fatal warnings out of band; nil discards them.
	Warn func(msg string)
}

func (p InputParams) warnf(msg string) {
	if p.Warn != nil {
		p.Warn(msg)
	}
}

// AddInput inserts a new input spending output vout of prev, returning its
// index in packet.Inputs/packet.UnsignedTx.TxIn.
func AddInput(packet *psbt.Packet, vout uint32, prev PrevOut, p InputParams) (int, error) {
	var (
		prevTxOut *wire.TxOut
		prevTx    *wire.MsgTx
		prevHash  chainhash.Hash
	)

	switch {
	case len(prev.TxHex) > 0:
		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(prev.TxHex)); err != nil {
			return 0, &ShapeError{Reason: "txHex does not decode to a transaction: " + err.Error()}
		}
		if int(vout) >= len(tx.TxOut) {
			return 0, &ShapeError{Reason: "vout is out of range for txHex"}
		}
		out := tx.TxOut[vout]
		if !bytes.Equal(out.PkScript, p.ScriptPubKey) {
			return 0, &ShapeError{Reason: "txHex vout's script does not match this output's scriptPubKey"}
		}
		txid := tx.TxHash()
		if prev.TxID != nil && !prev.TxID.IsEqual(&txid) {
			return 0, &ShapeError{Reason: "supplied txId does not match txHex"}
		}
		if prev.Value != 0 && prev.Value != out.Value {
			return 0, &ShapeError{Reason: "supplied value does not match txHex"}
		}
		prevTxOut, prevTx, prevHash = out, tx, txid

	case p.IsSegwit && prev.TxID != nil && prev.Value != 0:
		p.warnf("input added without its full previous transaction; a " +
			"signer cannot verify the value it commits to (fee attack)")
		prevTxOut = &wire.TxOut{Value: prev.Value, PkScript: p.ScriptPubKey}
		prevHash = *prev.TxID

	case p.IsSegwit:
		return 0, &ShapeError{Reason: "segwit input requires either txHex or both txId and value"}

	default:
		return 0, &ShapeError{Reason: "txHex is mandatory for a non-segwit input"}
	}

	if p.LockTime != nil {
		switch {
		case packet.UnsignedTx.LockTime == 0:
			packet.UnsignedTx.LockTime = *p.LockTime
		case packet.UnsignedTx.LockTime != *p.LockTime:
			return 0, &ShapeError{Reason: "transaction locktime already set to a different value"}
		}
	}

	sequence := SequenceFinal
	switch {
	case p.Sequence != nil:
		sequence = *p.Sequence
	case p.LockTime != nil:
		if p.RBF {
			sequence = SequenceRBF
		} else {
			sequence = SequenceNoRBF
		}
	}
	if p.LockTime != nil && sequence > SequenceNoRBF {
		return 0, &ShapeError{Reason: "sequence is final, incompatible with an active locktime"}
	}

	packet.UnsignedTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: vout},
		Sequence:         sequence,
	})

	pIn := psbt.PInput{
		RedeemScript:           p.RedeemScript,
		WitnessScript:          p.WitnessScript,
		Bip32Derivation:        p.Bip32Derivation,
		TaprootInternalKey:     p.TapInternalKey,
		TaprootMerkleRoot:      p.TapMerkleRoot,
		TaprootBip32Derivation: p.TapBip32Derivation,
		TaprootLeafScript:      p.TapLeafScript,
	}
	if prevTx != nil {
		pIn.NonWitnessUtxo = prevTx
	}
	if p.IsSegwit {
		pIn.WitnessUtxo = prevTxOut
	}
	packet.Inputs = append(packet.Inputs, pIn)

	return len(packet.Inputs) - 1, nil
}

// AddOutput appends a new output paying value to scriptPubKey.
func AddOutput(packet *psbt.Packet, scriptPubKey []byte, value int64, pOut psbt.POutput) {
	packet.UnsignedTx.AddTxOut(&wire.TxOut{Value: value, PkScript: scriptPubKey})
	packet.Outputs = append(packet.Outputs, pOut)
}
