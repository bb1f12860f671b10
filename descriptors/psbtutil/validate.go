package psbtutil

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignatureError reports a partial signature that fails cryptographic
// verification during the finalizer's validate phase.
type SignatureError struct {
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed: %s", e.Reason)
}

// VerifyInputSignatures checks every partial signature stored on the input
// at index against the sighash it commits to: ECDSA partialSigs for
// legacy/segwit inputs, the Schnorr taprootKeySpendSig against the output
// key, and each taprootScriptSpendSig against its leaf's tapscript sighash.
func VerifyInputSignatures(packet *psbt.Packet, index int) error {
	if index < 0 || index >= len(packet.Inputs) {
		return &ShapeError{Reason: "input index out of range"}
	}
	pIn := &packet.Inputs[index]
	tx := packet.UnsignedTx

	fetcher, err := prevOutFetcher(packet)
	if err != nil {
		return err
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	utxo := fetcher.FetchPrevOutput(tx.TxIn[index].PreviousOutPoint)
	if utxo == nil {
		return &ShapeError{Reason: "input has neither witnessUtxo nor nonWitnessUtxo"}
	}

	for _, ps := range pIn.PartialSigs {
		if err := verifyECDSA(pIn, tx, sigHashes, index, utxo, ps); err != nil {
			return err
		}
	}

	if len(pIn.TaprootKeySpendSig) > 0 {
		if err := verifyTaprootKeySpend(pIn, tx, sigHashes, index, utxo, fetcher); err != nil {
			return err
		}
	}

	for _, tss := range pIn.TaprootScriptSpendSig {
		if err := verifyTapscriptSpend(pIn, tx, sigHashes, index, fetcher, tss); err != nil {
			return err
		}
	}

	return nil
}

// prevOutFetcher collects every input's known previous output so taproot
// sighashes (which commit to all prevouts) can be computed.
func prevOutFetcher(packet *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i := range packet.Inputs {
		pIn := &packet.Inputs[i]
		op := packet.UnsignedTx.TxIn[i].PreviousOutPoint

		switch {
		case pIn.WitnessUtxo != nil:
			fetcher.AddPrevOut(op, pIn.WitnessUtxo)

		case pIn.NonWitnessUtxo != nil:
			if int(op.Index) >= len(pIn.NonWitnessUtxo.TxOut) {
				return nil, &ShapeError{Reason: "nonWitnessUtxo has no such vout"}
			}
			fetcher.AddPrevOut(op, pIn.NonWitnessUtxo.TxOut[op.Index])
		}
	}
	return fetcher, nil
}

func verifyECDSA(pIn *psbt.PInput, tx *wire.MsgTx, sigHashes *txscript.TxSigHashes,
	index int, utxo *wire.TxOut, ps *psbt.PartialSig) error {

	if len(ps.Signature) < 9 {
		return &SignatureError{Reason: "partial signature is too short"}
	}
	hashType := txscript.SigHashType(ps.Signature[len(ps.Signature)-1])
	der := ps.Signature[:len(ps.Signature)-1]

	pubKey, err := btcec.ParsePubKey(ps.PubKey)
	if err != nil {
		return &SignatureError{Reason: "partial signature carries an invalid public key"}
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return &SignatureError{Reason: "partial signature is not valid DER"}
	}

	signScript := utxo.PkScript
	switch {
	case txscript.IsPayToWitnessPubKeyHash(utxo.PkScript):
	case len(pIn.WitnessScript) > 0:
		signScript = pIn.WitnessScript
	case len(pIn.RedeemScript) > 0:
		signScript = pIn.RedeemScript
	}

	var hash []byte
	if txscript.IsPayToWitnessPubKeyHash(utxo.PkScript) || len(pIn.WitnessScript) > 0 {
		hash, err = txscript.CalcWitnessSigHash(
			signScript, sigHashes, hashType, tx, index, utxo.Value,
		)
	} else {
		hash, err = txscript.CalcSignatureHash(signScript, hashType, tx, index)
	}
	if err != nil {
		return fmt.Errorf("computing sighash for input %d: %w", index, err)
	}

	if !sig.Verify(hash, pubKey) {
		return &SignatureError{Reason: fmt.Sprintf(
			"ECDSA signature for key %x does not verify", ps.PubKey)}
	}
	return nil
}

func verifyTaprootKeySpend(pIn *psbt.PInput, tx *wire.MsgTx,
	sigHashes *txscript.TxSigHashes, index int, utxo *wire.TxOut,
	fetcher txscript.PrevOutputFetcher) error {

	rawSig, hashType, err := splitSchnorrSig(pIn.TaprootKeySpendSig)
	if err != nil {
		return err
	}

	// The key-path signature is made under the tweaked output key, which
	// is the witness program itself.
	if len(utxo.PkScript) != 34 {
		return &ShapeError{Reason: "taproot input's previous output is not a v1 witness program"}
	}
	outputKey, err := schnorr.ParsePubKey(utxo.PkScript[2:])
	if err != nil {
		return &SignatureError{Reason: "taproot output key is not a valid x-only point"}
	}

	hash, err := txscript.CalcTaprootSignatureHash(
		sigHashes, hashType, tx, index, fetcher,
	)
	if err != nil {
		return fmt.Errorf("computing taproot sighash for input %d: %w", index, err)
	}

	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return &SignatureError{Reason: "taprootKeySpendSig is not a valid Schnorr signature"}
	}
	if !sig.Verify(hash, outputKey) {
		return &SignatureError{Reason: "taproot key-path signature does not verify"}
	}
	return nil
}

func verifyTapscriptSpend(pIn *psbt.PInput, tx *wire.MsgTx,
	sigHashes *txscript.TxSigHashes, index int,
	fetcher txscript.PrevOutputFetcher, tss *psbt.TaprootScriptSpendSig) error {

	var leaf *txscript.TapLeaf
	for _, tls := range pIn.TaprootLeafScript {
		candidate := txscript.NewTapLeaf(tls.LeafVersion, tls.Script)
		hash := candidate.TapHash()
		if bytes.Equal(hash[:], tss.LeafHash) {
			leaf = &candidate
			break
		}
	}
	if leaf == nil {
		return &SignatureError{Reason: fmt.Sprintf(
			"no tapLeafScript matches signed leaf hash %x", tss.LeafHash)}
	}

	// The sighash type travels in its own field here; a 65-byte signature
	// with a trailing type byte is still accepted for interop.
	rawSig, hashType, err := splitSchnorrSig(tss.Signature)
	if err != nil {
		return err
	}
	if len(tss.Signature) == schnorr.SignatureSize {
		hashType = tss.SigHash
	}

	hash, err := txscript.CalcTapscriptSignaturehash(
		sigHashes, hashType, tx, index, fetcher, *leaf,
	)
	if err != nil {
		return fmt.Errorf("computing tapscript sighash for input %d: %w", index, err)
	}

	pubKey, err := schnorr.ParsePubKey(tss.XOnlyPubKey)
	if err != nil {
		return &SignatureError{Reason: "taprootScriptSpendSig carries an invalid x-only key"}
	}
	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return &SignatureError{Reason: "taprootScriptSpendSig is not a valid Schnorr signature"}
	}
	if !sig.Verify(hash, pubKey) {
		return &SignatureError{Reason: fmt.Sprintf(
			"tapscript signature for key %x does not verify", tss.XOnlyPubKey)}
	}
	return nil
}

// splitSchnorrSig separates a 64-byte (implicit SIGHASH_DEFAULT) or 65-byte
// Schnorr signature into its raw signature and sighash type.
func splitSchnorrSig(sig []byte) ([]byte, txscript.SigHashType, error) {
	switch len(sig) {
	case schnorr.SignatureSize:
		return sig, txscript.SigHashDefault, nil
	case schnorr.SignatureSize + 1:
		return sig[:schnorr.SignatureSize], txscript.SigHashType(sig[schnorr.SignatureSize]), nil
	default:
		return nil, 0, &SignatureError{Reason: fmt.Sprintf(
			"schnorr signature has invalid length %d", len(sig))}
	}
}
