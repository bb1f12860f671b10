package descriptors

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightninglabs/chantools/descriptors/keyexpr"
	"github.com/lightninglabs/chantools/descriptors/miniscript"
	"github.com/lightninglabs/chantools/descriptors/psbtutil"
	"github.com/lightninglabs/chantools/descriptors/taproot"
)

// Signature is one partial signature a caller has collected for this
// Output's satisfaction: PubKey identifies which key expression it's for
// (33-byte compressed, or 32-byte x-only for a taproot key), Sig is the
// raw ECDSA/Schnorr signature bytes.
type Signature struct {
	PubKey []byte
	Sig    []byte
}

// GuessedOutput reports which standard script-type family an Output's
// scriptPubKey belongs to, per spec.md §4.9's guessOutput(). Exactly one
// field is true, except for a bare pk(...) Output, which fits none of
// these standard address families and leaves every field false.
type GuessedOutput struct {
	IsPKH, IsWPKH, IsSH, IsWSH, IsTR bool
}

// TapSatisfaction is the result of selecting and satisfying a taproot
// script-path leaf, per spec.md §4.9's getTapScriptSatisfaction().
type TapSatisfaction struct {
	StackItems   [][]byte
	Leaf         *taproot.Leaf
	ControlBlock []byte
}

// Finalizer is the closure UpdatePsbtAsInput returns: it finalizes the
// input it was bound to once the caller has collected enough signatures.
// hint only matters for a taproot script-path Output with more than one
// leaf; it is ignored otherwise. Callers that want the cryptographic
// validate phase call FinalizePsbtInput directly instead.
type Finalizer func(sigs []Signature, hint *taproot.LeafHint) error

// Output is the immutable value object spec.md §3/§4.9 describes: every
// expensive derived quantity (scripts, address, locktime/sequence) is
// computed once at construction time by Parse, per Design Note
// "Memoization" — a precomputing builder rather than per-call caches.
type Output struct {
	raw     string
	network *chaincfg.Params

	scriptPubKey []byte
	address      string

	redeemScript  []byte
	witnessScript []byte

	internalKey      *keyexpr.KeyInfo
	tapTree          *taproot.Node
	taprootSpendPath SpendPath

	expansion *Expansion

	guessedAddrType btcutil.Address
	shAssumesSegwit bool

	preimages map[string][]byte
	warn      func(msg string)

	// signers restricts which keys may contribute signatures; empty
	// means every key in the expansion map.
	signers []*keyexpr.KeyInfo

	lockTime *uint32
	sequence *uint32
}

// precomputeTimeConstraints fills in o.lockTime/o.sequence using fake
// signatures, per spec.md §4.6's "the adapter calls itself with fake
// 72-byte zero signatures" rule: signatures never affect locktime/
// sequence, only which branch of the miniscript is chosen, so this can
// run once at construction and the real satisfaction later must agree
// with it (§8 property 6).
func (o *Output) precomputeTimeConstraints() error {
	switch o.expansion.Type {
	case TypeWSH, TypeShWSH, TypeShMS:
		lt, seq, err := miniscript.DiscoverTimeConstraints(
			o.expansion.Miniscript.Node, o.expansion.Miniscript.Map)
		if err != nil {
			return err
		}
		o.lockTime, o.sequence = lt, seq

	case TypeTrTree:
		sel, err := taproot.SelectLeaf(o.tapTree, nil, taproot.FakeKnowns(o.tapTree))
		if err != nil {
			// Not every tree has a leaf satisfiable purely from its
			// own structure with synthetic signatures (e.g. a leaf
			// using unsupported fragments); leave the constraints
			// unset rather than failing construction outright.
			return nil
		}
		o.lockTime, o.sequence = sel.Witness.LockTime, sel.Witness.Sequence
	}
	return nil
}

// GetScriptPubKey returns this Output's locking script.
func (o *Output) GetScriptPubKey() ([]byte, error) {
	if len(o.scriptPubKey) == 0 {
		return nil, &DescriptorParseError{Descriptor: o.raw, Reason: "no scriptPubKey was produced"}
	}
	return o.scriptPubKey, nil
}

// GetAddress returns this Output's address encoding. Fails for pk(...),
// which has no standard address form.
func (o *Output) GetAddress() (string, error) {
	if o.address == "" {
		return "", &DescriptorParseError{Descriptor: o.raw, Reason: "this descriptor form has no address"}
	}
	return o.address, nil
}

// GetWitnessScript returns the P2WSH witness script, if this Output has
// one.
func (o *Output) GetWitnessScript() ([]byte, bool) {
	return o.witnessScript, len(o.witnessScript) > 0
}

// GetRedeemScript returns the P2SH redeem script, if this Output has one.
func (o *Output) GetRedeemScript() ([]byte, bool) {
	return o.redeemScript, len(o.redeemScript) > 0
}

// GetSequence returns the nSequence this Output's satisfaction prescribes,
// nil if none.
func (o *Output) GetSequence() *uint32 { return o.sequence }

// GetLockTime returns the nLockTime this Output's satisfaction prescribes,
// nil if none.
func (o *Output) GetLockTime() *uint32 { return o.lockTime }

// GuessOutput reports which standard script family this Output's
// scriptPubKey matches, per spec.md §4.9.
func (o *Output) GuessOutput() GuessedOutput {
	if o.expansion.Type == TypeAddr {
		switch o.guessedAddrType.(type) {
		case *btcutil.AddressPubKeyHash:
			return GuessedOutput{IsPKH: true}
		case *btcutil.AddressWitnessPubKeyHash:
			return GuessedOutput{IsWPKH: true}
		case *btcutil.AddressScriptHash:
			return GuessedOutput{IsSH: true}
		case *btcutil.AddressWitnessScriptHash:
			return GuessedOutput{IsWSH: true}
		case *btcutil.AddressTaproot:
			return GuessedOutput{IsTR: true}
		}
		return GuessedOutput{}
	}

	switch o.expansion.Type {
	case TypePKH:
		return GuessedOutput{IsPKH: true}
	case TypeWPKH:
		return GuessedOutput{IsWPKH: true}
	case TypeShWPKH, TypeShWSH, TypeShMS:
		return GuessedOutput{IsSH: true}
	case TypeWSH:
		return GuessedOutput{IsWSH: true}
	case TypeTrKeyOnly, TypeTrTree:
		return GuessedOutput{IsTR: true}
	default:
		return GuessedOutput{}
	}
}

// GetScriptSatisfaction builds the non-malleable witness-stack
// satisfaction for a wsh/sh(wsh)/sh(ms) Output, per spec.md §4.6, failing
// with a SatisfactionError if the time constraints it resolves to don't
// match the ones computed with fake signatures at construction time.
func (o *Output) GetScriptSatisfaction(sigs []Signature) (*miniscript.Satisfaction, error) {
	if o.expansion.Miniscript == nil {
		return nil, &miniscript.SatisfactionError{
			Reason: "this descriptor form has no miniscript to satisfy",
		}
	}

	knowns := knownsFor(o.expansion.Miniscript.Map, o.filterAuthorized(sigs), o.preimages)
	sat, err := miniscript.Satisfy(o.expansion.Miniscript.Node, o.expansion.Miniscript.Map, knowns)
	if err != nil {
		return nil, err
	}

	if !timeConstraintsMatch(o.lockTime, o.sequence, sat.LockTime, sat.Sequence) {
		return nil, &miniscript.SatisfactionError{
			Reason: "signed satisfaction's time constraints do not match the ones computed with fake signatures",
		}
	}
	return sat, nil
}

// GetTapScriptSatisfaction selects a taproot script-path leaf (by hint, or
// the smallest satisfiable witness) and builds its satisfaction and
// control block, per spec.md §4.7's leaf-selection rule.
func (o *Output) GetTapScriptSatisfaction(sigs []Signature, hint *taproot.LeafHint) (*TapSatisfaction, error) {
	if o.expansion.Type != TypeTrTree {
		return nil, &taproot.Error{Reason: "this Output has no taproot script tree"}
	}

	sigsByXOnly := map[string][]byte{}
	for _, s := range o.filterAuthorized(sigs) {
		sigsByXOnly[hex.EncodeToString(xOnlyOf(s.PubKey))] = s.Sig
	}

	sel, err := taproot.SelectLeafBySignatures(o.tapTree, hint, sigsByXOnly, o.preimages)
	if err != nil {
		return nil, err
	}

	_, parityOdd, err := taproot.OutputKey(o.internalKey.XOnly(), o.tapTree)
	if err != nil {
		return nil, err
	}
	cb, err := taproot.ControlBlock(o.internalKey.XOnly(), parityOdd, sel.Leaf, sel.MerkleProof)
	if err != nil {
		return nil, err
	}

	return &TapSatisfaction{
		StackItems:   sel.Witness.Stack,
		Leaf:         sel.Leaf,
		ControlBlock: cb,
	}, nil
}

func xOnlyOf(pub []byte) []byte {
	switch len(pub) {
	case 32:
		return pub
	case 33:
		return pub[1:]
	default:
		return pub
	}
}

func knownsFor(m miniscript.ExpansionMap, sigs []Signature, preimages map[string][]byte) miniscript.Knowns {
	sigMap := map[string][]byte{}
	for placeholder, ki := range m {
		for _, s := range sigs {
			if keyMatchesSignature(ki, s.PubKey) {
				sigMap[placeholder] = s.Sig
			}
		}
	}
	return miniscript.Knowns{Signatures: sigMap, Preimages: preimages}
}

func keyMatchesSignature(ki *keyexpr.KeyInfo, pub []byte) bool {
	if bytes.Equal(ki.PubKey, pub) {
		return true
	}
	if ki.IsTaproot && bytes.Equal(ki.XOnly(), xOnlyOf(pub)) {
		return true
	}
	return false
}

func timeConstraintsMatch(wantLock, wantSeq, gotLock, gotSeq *uint32) bool {
	return uint32Equal(wantLock, gotLock) && uint32Equal(wantSeq, gotSeq)
}

func uint32Equal(a, b *uint32) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func findSignature(sigs []Signature, ki *keyexpr.KeyInfo) ([]byte, bool) {
	for _, s := range sigs {
		if keyMatchesSignature(ki, s.PubKey) {
			return s.Sig, true
		}
	}
	return nil, false
}

// filterAuthorized drops signatures made under keys outside the Output's
// authorized-signer set; an empty set authorizes every expansion key.
func (o *Output) filterAuthorized(sigs []Signature) []Signature {
	if len(o.signers) == 0 {
		return sigs
	}
	var out []Signature
	for _, s := range sigs {
		for _, ki := range o.signers {
			if keyMatchesSignature(ki, s.PubKey) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// ---- weight estimation (spec.md §6) ----

func varSliceSize(b []byte) int {
	return wire.VarIntSerializeSize(uint64(len(b))) + len(b)
}

func vectorSize(items [][]byte) int {
	n := wire.VarIntSerializeSize(uint64(len(items)))
	for _, item := range items {
		n += varSliceSize(item)
	}
	return n
}

// InputWeight estimates the weight-unit contribution of spending this
// Output, per spec.md §6's per-form formulas. sigs supplies real
// signatures for an exact estimate; a nil/short sigs uses the standard
// 72-byte zero-padded placeholder length §6 specifies for fee estimation.
func (o *Output) InputWeight(isSegwitTx bool, sigs []Signature) (uint32, error) {
	sigSize := func(ki *keyexpr.KeyInfo) int {
		if sig, ok := findSignature(sigs, ki); ok {
			return len(sig)
		}
		return 72
	}

	switch o.expansion.Type {
	case TypePKH:
		ki := o.expansion.Keys["@0"]
		w := (32+4+4+1+sigSize(ki)+34)*4
		if isSegwitTx {
			w++
		}
		return uint32(w), nil

	case TypeWPKH:
		ki := o.expansion.Keys["@0"]
		return uint32(41*4 + (1 + sigSize(ki) + 34)), nil

	case TypeShWPKH:
		ki := o.expansion.Keys["@0"]
		return uint32(64*4 + (1 + sigSize(ki) + 34)), nil

	case TypeWSH, TypeShWSH:
		sat, err := o.fakeOrRealSatisfaction(sigs)
		if err != nil {
			return 0, err
		}
		scriptSig := []byte{}
		if o.expansion.Type == TypeShWSH {
			scriptSig, err = txscript.NewScriptBuilder().AddData(o.redeemScript).Script()
			if err != nil {
				return 0, err
			}
		}
		witness := append(append([][]byte{}, sat.Stack...), o.witnessScript)
		return uint32(4*(40+varSliceSize(scriptSig)) + vectorSize(witness)), nil

	case TypeShMS:
		sat, err := o.fakeOrRealSatisfaction(sigs)
		if err != nil {
			return 0, err
		}
		builder := txscript.NewScriptBuilder()
		for _, item := range sat.Stack {
			if len(item) == 0 {
				builder.AddOp(txscript.OP_0)
				continue
			}
			builder.AddData(item)
		}
		builder.AddData(o.redeemScript)
		scriptSig, err := builder.Script()
		if err != nil {
			return 0, err
		}
		return uint32(4 * (40 + varSliceSize(scriptSig))), nil

	case TypeTrKeyOnly:
		return uint32(41*4 + (1 + 65)), nil

	case TypeTrTree:
		tsat, err := o.GetTapScriptSatisfaction(sigs, nil)
		if err != nil {
			return 0, err
		}
		witness := append(append([][]byte{}, tsat.StackItems...), tsat.Leaf.Script, tsat.ControlBlock)
		return uint32(41*4 + vectorSize(witness)), nil

	default:
		return 0, &DescriptorParseError{Descriptor: o.raw, Reason: "inputWeight is not defined for this descriptor form"}
	}
}

// fakeOrRealSatisfaction builds this Output's miniscript satisfaction
// using sigs if every required signer is present, falling back to the
// standard 72-byte zero-padded placeholder signatures §6 specifies for
// fee estimation when sigs is incomplete.
func (o *Output) fakeOrRealSatisfaction(sigs []Signature) (*miniscript.Satisfaction, error) {
	if len(sigs) > 0 {
		if sat, err := o.GetScriptSatisfaction(sigs); err == nil {
			return sat, nil
		}
	}
	knowns := taproot.FakeKnowns(&taproot.Node{Leaf: &taproot.Leaf{Expansion: o.expansion.Miniscript}})
	return miniscript.Satisfy(o.expansion.Miniscript.Node, o.expansion.Miniscript.Map, knowns)
}

// OutputWeight estimates the weight-unit contribution of paying to this
// Output: the 8-byte value field plus the scriptPubKey, non-witness.
func (o *Output) OutputWeight() uint32 {
	return uint32(4 * (8 + varSliceSize(o.scriptPubKey)))
}

// ---- PSBT updater / finalizer (spec.md §4.10/§4.11) ----

func fingerprintUint32(fp []byte) uint32 {
	if len(fp) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(fp)
}

func fullPath(ki *keyexpr.KeyInfo) []uint32 {
	path := make([]uint32, 0, len(ki.OriginPath)+len(ki.KeyPath))
	path = append(path, ki.OriginPath...)
	path = append(path, ki.KeyPath...)
	return path
}

func (o *Output) bip32Derivations() []*psbt.Bip32Derivation {
	var out []*psbt.Bip32Derivation
	placeholders := make([]string, 0, len(o.expansion.Keys))
	for p := range o.expansion.Keys {
		placeholders = append(placeholders, p)
	}
	sort.Strings(placeholders)

	for _, p := range placeholders {
		ki := o.expansion.Keys[p]
		if ki.ExtendedKey == nil {
			continue
		}
		out = append(out, &psbt.Bip32Derivation{
			PubKey:               ki.PubKey,
			MasterKeyFingerprint: fingerprintUint32(ki.MasterFingerprint),
			Bip32Path:            fullPath(ki),
		})
	}
	return out
}

func toTaprootBip32Derivations(ds []*taproot.Bip32Derivation) []*psbt.TaprootBip32Derivation {
	out := make([]*psbt.TaprootBip32Derivation, len(ds))
	for i, d := range ds {
		leafHashes := d.LeafHashes
		if leafHashes == nil {
			leafHashes = [][]byte{}
		}
		out[i] = &psbt.TaprootBip32Derivation{
			XOnlyPubKey:          d.PubKey,
			MasterKeyFingerprint: fingerprintUint32(d.MasterFingerprint),
			Bip32Path:            d.Path,
			LeafHashes:           leafHashes,
		}
	}
	return out
}

// UpdatePsbtAsInput inserts a new input spending this Output, per
// spec.md §4.10, and returns a Finalizer closure bound to that input's
// index.
func (o *Output) UpdatePsbtAsInput(packet *psbt.Packet, prev psbtutil.PrevOut, vout uint32, rbf bool) (Finalizer, error) {
	params := psbtutil.InputParams{
		ScriptPubKey:  o.scriptPubKey,
		IsSegwit:      o.expansion.IsSegwit,
		RedeemScript:  o.redeemScript,
		WitnessScript: o.witnessScript,
		LockTime:      o.lockTime,
		Sequence:      o.sequence,
		RBF:           rbf,
		Warn:          o.warn,
	}

	switch o.expansion.Type {
	case TypeTrKeyOnly, TypeTrTree:
		params.TapInternalKey = o.internalKey.XOnly()
		params.TapMerkleRoot = taproot.MerkleRoot(o.tapTree)
		params.TapBip32Derivation = toTaprootBip32Derivations(
			taproot.CollectBip32Derivations(o.tapTree, o.internalKey))

		if o.expansion.Type == TypeTrTree && o.taprootSpendPath != SpendPathKey {
			_, parityOdd, err := taproot.OutputKey(o.internalKey.XOnly(), o.tapTree)
			if err != nil {
				return nil, err
			}
			for _, leaf := range taproot.Leaves(o.tapTree) {
				proof := taproot.MerkleProof(o.tapTree, leaf)
				cb, err := taproot.ControlBlock(o.internalKey.XOnly(), parityOdd, leaf, proof)
				if err != nil {
					return nil, err
				}
				params.TapLeafScript = append(params.TapLeafScript, &psbt.TaprootTapLeafScript{
					ControlBlock: cb,
					Script:       leaf.Script,
					LeafVersion:  txscript.TapscriptLeafVersion(leaf.LeafVersion),
				})
			}
		}

	default:
		params.Bip32Derivation = o.bip32Derivations()
	}

	index, err := psbtutil.AddInput(packet, vout, prev, params)
	if err != nil {
		return nil, err
	}

	return func(sigs []Signature, hint *taproot.LeafHint) error {
		return o.FinalizePsbtInput(packet, index, sigs, hint, false)
	}, nil
}

// UpdatePsbtAsOutput appends a new output paying value to this Output.
func (o *Output) UpdatePsbtAsOutput(packet *psbt.Packet, value int64) {
	pOut := psbt.POutput{}
	if o.expansion.Type == TypeTrKeyOnly || o.expansion.Type == TypeTrTree {
		pOut.TaprootInternalKey = o.internalKey.XOnly()
		pOut.TaprootMerkleRoot = taproot.MerkleRoot(o.tapTree)
		pOut.TaprootBip32Derivation = toTaprootBip32Derivations(
			taproot.CollectBip32Derivations(o.tapTree, o.internalKey))
	} else {
		pOut.Bip32Derivation = o.bip32Derivations()
	}
	psbtutil.AddOutput(packet, o.scriptPubKey, value, pOut)
}

// FinalizePsbtInput builds the final scriptSig/scriptWitness for this
// Output's input at index. validate additionally verifies every partial
// signature stored on the input (ECDSA and Schnorr) against its sighash
// before any assembly happens.
func (o *Output) FinalizePsbtInput(packet *psbt.Packet, index int, sigs []Signature, hint *taproot.LeafHint, validate bool) error {
	sigs = o.filterAuthorized(sigs)
	params := psbtutil.FinalizeParams{
		ScriptPubKey:     o.scriptPubKey,
		ExpectedLockTime: o.lockTime,
		ExpectedSequence: o.sequence,
		RedeemScript:     o.redeemScript,
		WitnessScript:    o.witnessScript,
		ValidateSigs:     validate,
	}

	switch o.expansion.Type {
	case TypePK:
		ki := o.expansion.Keys["@0"]
		sig, ok := findSignature(sigs, ki)
		if !ok {
			return &miniscript.SatisfactionError{Reason: "no signature known for pk(...)"}
		}
		params.Stack = [][]byte{sig}
		params.AsScriptSig = true

	case TypePKH:
		ki := o.expansion.Keys["@0"]
		sig, ok := findSignature(sigs, ki)
		if !ok {
			return &miniscript.SatisfactionError{Reason: "no signature known for pkh(...)"}
		}
		params.Stack = [][]byte{sig, ki.PubKey}
		params.AsScriptSig = true

	case TypeWPKH:
		ki := o.expansion.Keys["@0"]
		sig, ok := findSignature(sigs, ki)
		if !ok {
			return &miniscript.SatisfactionError{Reason: "no signature known for wpkh(...)"}
		}
		params.Stack = [][]byte{sig, ki.PubKey}

	case TypeShWPKH:
		ki := o.expansion.Keys["@0"]
		sig, ok := findSignature(sigs, ki)
		if !ok {
			return &miniscript.SatisfactionError{Reason: "no signature known for sh(wpkh(...))"}
		}
		params.Stack = [][]byte{sig, ki.PubKey}
		params.NestedSegwit = true

	case TypeWSH, TypeShWSH:
		sat, err := o.GetScriptSatisfaction(sigs)
		if err != nil {
			return err
		}
		params.MiniscriptStack = sat.Stack
		params.NestedSegwit = o.expansion.Type == TypeShWSH

	case TypeShMS:
		sat, err := o.GetScriptSatisfaction(sigs)
		if err != nil {
			return err
		}
		params.MiniscriptStack = sat.Stack
		params.LegacyScriptSig = true

	case TypeTrKeyOnly:
		if len(sigs) == 0 {
			return &taproot.Error{Reason: "no tapKeySig supplied for a taproot key-path spend"}
		}
		params.TaprootKeySig = sigs[0].Sig

	case TypeTrTree:
		tsat, err := o.GetTapScriptSatisfaction(sigs, hint)
		if err != nil {
			return &taproot.Error{Reason: fmt.Sprintf("no satisfiable tapscript leaf: %v", err)}
		}
		params.TaprootStack = tsat.StackItems
		params.TaprootScript = tsat.Leaf.Script
		params.TaprootControlBlock = tsat.ControlBlock

	default:
		return &DescriptorParseError{Descriptor: o.raw, Reason: "finalizePsbtInput is not defined for this descriptor form"}
	}

	return psbtutil.FinalizeInput(packet, index, params)
}
