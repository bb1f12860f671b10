package psbtutil

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// ErrNoMatchingPath is returned by FindMatchingDerivationPath when none of
// an input's bip32Derivation entries trace back to rootKey.
var ErrNoMatchingPath = fmt.Errorf("no matching derivation path found")

// FindMatchingDerivationPath generalizes
// cmd/chantools/signpsbt.go's findMatchingDerivationPath: it no longer
// assumes a single hardcoded path depth, returning whatever path the
// matching bip32Derivation entry carries.
func FindMatchingDerivationPath(rootKey *hdkeychain.ExtendedKey, pIn *psbt.PInput) ([]uint32, error) {
	pubKey, err := rootKey.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("error getting public key: %w", err)
	}
	fingerprint := binary.LittleEndian.Uint32(
		btcutil.Hash160(pubKey.SerializeCompressed())[:4],
	)

	if len(pIn.Bip32Derivation) == 0 {
		return nil, ErrNoMatchingPath
	}
	for _, derivation := range pIn.Bip32Derivation {
		if derivation.MasterKeyFingerprint == 0 && len(pIn.Bip32Derivation) == 1 {
			return derivation.Bip32Path, nil
		}
		if derivation.MasterKeyFingerprint == fingerprint {
			return derivation.Bip32Path, nil
		}
	}
	return nil, ErrNoMatchingPath
}

// SignInputHD derives the local private key along the input's matching
// bip32Derivation path and adds an ECDSA partial signature for it,
// generalizing cmd/chantools/signpsbt.go's signPsbt to any descriptor
// Output form that ultimately reduces to a single ECDSA signature slot
// (pkh, wpkh, sh(wpkh), and any wsh/sh(wsh)/sh(ms) leaf pubkey). Miniscript
// threshold forms with more than one signer call this once per signer.
func SignInputHD(packet *psbt.Packet, index int, rootKey *hdkeychain.ExtendedKey,
	hashType txscript.SigHashType) error {

	if index < 0 || index >= len(packet.Inputs) {
		return &ShapeError{Reason: "input index out of range"}
	}
	pIn := &packet.Inputs[index]

	path, err := FindMatchingDerivationPath(rootKey, pIn)
	if err != nil {
		return err
	}

	localKey := rootKey
	for _, childIndex := range path {
		localKey, err = localKey.DeriveNonStandard(childIndex)
		if err != nil {
			return fmt.Errorf("could not derive local key: %w", err)
		}
	}
	privKey, err := localKey.ECPrivKey()
	if err != nil {
		return fmt.Errorf("error getting private key: %w", err)
	}
	pubKey := privKey.PubKey().SerializeCompressed()

	for _, sig := range pIn.PartialSigs {
		if bytes.Equal(sig.PubKey, pubKey) {
			return nil
		}
	}

	if pIn.WitnessUtxo == nil && pIn.NonWitnessUtxo == nil {
		return &ShapeError{Reason: "input is missing witnessUtxo/nonWitnessUtxo"}
	}
	utxo := pIn.WitnessUtxo
	if utxo == nil {
		vout := packet.UnsignedTx.TxIn[index].PreviousOutPoint.Index
		utxo = pIn.NonWitnessUtxo.TxOut[vout]
	}

	var signScript []byte
	switch {
	case txscript.IsPayToWitnessPubKeyHash(utxo.PkScript):
		signScript = utxo.PkScript
	case len(pIn.WitnessScript) > 0:
		signScript = pIn.WitnessScript
	case len(pIn.RedeemScript) > 0:
		signScript = pIn.RedeemScript
	default:
		signScript = utxo.PkScript
	}

	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(utxo.PkScript, utxo.Value)
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, prevOutFetcher)

	var rawSig []byte
	switch {
	case txscript.IsPayToWitnessPubKeyHash(utxo.PkScript), len(pIn.WitnessScript) > 0:
		rawSig, err = txscript.RawTxInWitnessSignature(
			packet.UnsignedTx, sigHashes, index, utxo.Value,
			signScript, hashType, privKey,
		)
	default:
		rawSig, err = txscript.RawTxInSignature(
			packet.UnsignedTx, index, signScript, hashType, privKey,
		)
	}
	if err != nil {
		return fmt.Errorf("error signing input %d: %w", index, err)
	}

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return fmt.Errorf("error creating psbt updater: %w", err)
	}
	if _, err := updater.Sign(
		index, rawSig, pubKey, nil, pIn.WitnessScript,
	); err != nil {
		return fmt.Errorf("error adding partial signature: %w", err)
	}

	return nil
}

// SignAllInputsHD calls SignInputHD for every input carrying a
// bip32Derivation entry that matches rootKey, skipping (not failing on)
// inputs that don't belong to it.
func SignAllInputsHD(packet *psbt.Packet, rootKey *hdkeychain.ExtendedKey,
	hashType txscript.SigHashType) error {

	for i := range packet.Inputs {
		err := SignInputHD(packet, i, rootKey, hashType)
		if err == ErrNoMatchingPath {
			continue
		}
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
	}
	return nil
}

