package psbtutil

import (
	"bytes"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// FinalizeParams carries exactly the per-form data descriptors.Output's
// FinalizePsbtInput has already computed; FinalizeInput itself does no
// miniscript/taproot decision-making, only assembly and the §4.11
// assertion-phase checks.
type FinalizeParams struct {
	ScriptPubKey     []byte
	ExpectedLockTime *uint32
	ExpectedSequence *uint32

	RedeemScript  []byte
	WitnessScript []byte

	// NestedSegwit is set for sh(wpkh)/sh(wsh): the witness stack above
	// is accompanied by a push of RedeemScript into the scriptSig.
	NestedSegwit bool

	// MiniscriptStack is the wsh/sh(wsh)/sh(ms) satisfaction stack
	// (bottom to top, not yet including the witness/redeem script
	// itself).
	MiniscriptStack [][]byte
	// LegacyScriptSig selects sh(ms) assembly: MiniscriptStack||
	// RedeemScript goes into FinalScriptSig rather than the witness.
	LegacyScriptSig bool

	// Stack is the raw finalScriptWitness for a non-miniscript
	// legacy/segwit form (P2PKH scriptSig items, P2WPKH witness items),
	// assembled by the caller from partialSig.
	Stack [][]byte
	// AsScriptSig selects legacy P2PKH/bare pk assembly: Stack is
	// pushed item-by-item into FinalScriptSig instead of the witness.
	AsScriptSig bool

	// TaprootKeySig is the single witness element for a taproot
	// key-path spend.
	TaprootKeySig []byte

	// TaprootScript/-ControlBlock/-Stack together form a taproot
	// script-path spend's witness: Stack || TaprootScript ||
	// TaprootControlBlock.
	TaprootStack        [][]byte
	TaprootScript       []byte
	TaprootControlBlock []byte

	// ValidateSigs runs VerifyInputSignatures before any assembly, so a
	// signature over the wrong sighash fails the finalize call instead of
	// producing an unspendable witness.
	ValidateSigs bool
}

// FinalizeInput runs the §4.11 assertion phase and, if it passes, writes
// this input's FinalScriptSig/FinalScriptWitness and clears its
// now-redundant partial-signing fields.
func FinalizeInput(packet *psbt.Packet, index int, p FinalizeParams) error {
	if index < 0 || index >= len(packet.Inputs) {
		return &ShapeError{Reason: "input index out of range"}
	}
	pIn := &packet.Inputs[index]
	txIn := packet.UnsignedTx.TxIn[index]

	if p.ValidateSigs {
		if err := VerifyInputSignatures(packet, index); err != nil {
			return err
		}
	}

	spk, err := spkFromInput(pIn, packet.UnsignedTx, index)
	if err != nil {
		return err
	}
	if !bytes.Equal(spk, p.ScriptPubKey) {
		return &ShapeError{Reason: "input's previous output script does not match this output"}
	}

	wantSeq := map[uint32]bool{SequenceNoRBF: true, SequenceRBF: true}
	if p.ExpectedSequence != nil {
		wantSeq[*p.ExpectedSequence] = true
	} else {
		wantSeq[SequenceFinal] = true
	}
	if !wantSeq[txIn.Sequence] {
		return &ShapeError{Reason: "input nSequence does not match any expected value"}
	}

	wantLockTime := uint32(0)
	if p.ExpectedLockTime != nil {
		wantLockTime = *p.ExpectedLockTime
	}
	if packet.UnsignedTx.LockTime != wantLockTime {
		return &ShapeError{Reason: "transaction locktime does not match this output's expectation"}
	}

	if len(p.RedeemScript) > 0 && !bytes.Equal(pIn.RedeemScript, p.RedeemScript) {
		return &ShapeError{Reason: "input redeemScript does not match this output's"}
	}
	if len(p.WitnessScript) > 0 && !bytes.Equal(pIn.WitnessScript, p.WitnessScript) {
		return &ShapeError{Reason: "input witnessScript does not match this output's"}
	}

	switch {
	case p.TaprootKeySig != nil:
		if err := setWitness(pIn, [][]byte{p.TaprootKeySig}); err != nil {
			return err
		}

	case p.TaprootScript != nil:
		stack := append(append([][]byte{}, p.TaprootStack...), p.TaprootScript, p.TaprootControlBlock)
		if err := setWitness(pIn, stack); err != nil {
			return err
		}

	case p.LegacyScriptSig:
		builder := txscript.NewScriptBuilder()
		for _, item := range p.MiniscriptStack {
			addStackItem(builder, item)
		}
		builder.AddData(p.RedeemScript)
		script, err := builder.Script()
		if err != nil {
			return err
		}
		pIn.FinalScriptSig = script

	case p.MiniscriptStack != nil:
		stack := append(append([][]byte{}, p.MiniscriptStack...), p.WitnessScript)
		if err := setWitness(pIn, stack); err != nil {
			return err
		}
		if p.NestedSegwit {
			pIn.FinalScriptSig, err = pushData(p.RedeemScript)
			if err != nil {
				return err
			}
		}

	case p.AsScriptSig:
		builder := txscript.NewScriptBuilder()
		for _, item := range p.Stack {
			addStackItem(builder, item)
		}
		script, err := builder.Script()
		if err != nil {
			return err
		}
		pIn.FinalScriptSig = script

	case p.Stack != nil:
		if err := setWitness(pIn, p.Stack); err != nil {
			return err
		}
		if p.NestedSegwit {
			pIn.FinalScriptSig, err = pushData(p.RedeemScript)
			if err != nil {
				return err
			}
		}

	default:
		return &ShapeError{Reason: "no satisfaction supplied to finalize this input"}
	}

	// BIP174 expects a finalizer to drop the now-redundant partial-signing
	// fields; the taproot-specific ones are left as documentation of how
	// the input was signed rather than stripped, which a strict
	// finalizer could tighten later.
	pIn.PartialSigs = nil
	pIn.Bip32Derivation = nil

	return nil
}

func spkFromInput(pIn *psbt.PInput, tx *wire.MsgTx, index int) ([]byte, error) {
	if pIn.WitnessUtxo != nil {
		return pIn.WitnessUtxo.PkScript, nil
	}
	if pIn.NonWitnessUtxo != nil {
		vout := tx.TxIn[index].PreviousOutPoint.Index
		if int(vout) >= len(pIn.NonWitnessUtxo.TxOut) {
			return nil, &ShapeError{Reason: "nonWitnessUtxo has no such vout"}
		}
		return pIn.NonWitnessUtxo.TxOut[vout].PkScript, nil
	}
	return nil, &ShapeError{Reason: "input has neither witnessUtxo nor nonWitnessUtxo"}
}

func setWitness(pIn *psbt.PInput, stack [][]byte) error {
	var buf bytes.Buffer
	if err := psbt.WriteTxWitness(&buf, stack); err != nil {
		return err
	}
	pIn.FinalScriptWitness = buf.Bytes()
	return nil
}

func pushData(data []byte) ([]byte, error) {
	return txscript.NewScriptBuilder().AddData(data).Script()
}

// addStackItem pushes a satisfaction stack item, rendering an empty item
// (the miniscript "false" marker) as OP_0 rather than a zero-length data
// push the builder would otherwise optimize away silently.
func addStackItem(b *txscript.ScriptBuilder, item []byte) {
	if len(item) == 0 {
		b.AddOp(txscript.OP_0)
		return
	}
	b.AddData(item)
}
