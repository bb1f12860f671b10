package descriptors

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/lightninglabs/chantools/descriptors/checksum"
	"github.com/lightninglabs/chantools/descriptors/keyexpr"
	"github.com/lightninglabs/chantools/descriptors/miniscript"
	"github.com/lightninglabs/chantools/descriptors/taproot"
)

// shTopLevelAllow is the set of miniscript fragments §4.8 permits directly
// inside a bare `sh(MS)` (not `sh(wpkh(...))`/`sh(wsh(...))`, which have
// their own dedicated forms), unless Options.RelaxedShMS lifts it.
var shTopLevelAllow = map[miniscript.Frag]bool{
	miniscript.WrapC:         true, // pk(...) / pkh(...) both desugar to c:
	miniscript.FragMulti:     true,
	miniscript.FragMultiA:    true,
	miniscript.FragSortedMu:  true,
	miniscript.FragSortedMuA: true,
}

// Parse destructures a descriptor string into an immutable Output, per
// spec.md §4.8's top-level grammar dispatch.
func Parse(raw string, opts Options) (*Output, error) {
	if err := checksum.Verify(raw, false); err != nil {
		return nil, err
	}
	body := checksum.Strip(raw)

	name, inner, ok := parseCall(body)
	if !ok {
		return nil, &DescriptorParseError{Descriptor: raw, Reason: "not a valid descriptor function call"}
	}

	var (
		out *Output
		err error
	)
	switch name {
	case "addr":
		out, err = buildAddr(raw, inner, opts)
	case "pk":
		out, err = buildPk(raw, inner, opts)
	case "pkh":
		out, err = buildPkh(raw, inner, opts)
	case "wpkh":
		out, err = buildWpkh(raw, inner, opts)
	case "sh":
		out, err = buildSh(raw, inner, opts)
	case "wsh":
		out, err = buildWsh(raw, inner, opts)
	case "tr":
		out, err = buildTr(raw, inner, opts)
	default:
		return nil, &DescriptorParseError{
			Descriptor: raw,
			Reason:     fmt.Sprintf("unrecognized top-level form %q", name),
		}
	}
	if err != nil {
		return nil, err
	}

	if opts.Index != nil && !out.expansion.IsRanged {
		return nil, &keyexpr.RangeError{
			Reason: "an index was supplied for a descriptor with no wildcard",
		}
	}
	out.warn = opts.Warn
	out.signers = opts.AuthorizedSigners

	if err := out.precomputeTimeConstraints(); err != nil {
		return nil, err
	}
	return out, nil
}

func resolveKey(exprText string, opts Options, isSegwit, isTaproot bool) (*keyexpr.KeyInfo, bool, error) {
	ke, err := keyexpr.Parse(exprText, opts.keyexprOptions(isSegwit, isTaproot))
	if err != nil {
		return nil, false, err
	}
	ki, err := ke.Resolve(opts.Index, opts.Change)
	if err != nil {
		return nil, false, err
	}
	return ki, ke.IsRanged(), nil
}

func buildAddr(raw, inner string, opts Options) (*Output, error) {
	if opts.TaprootSpendPath != SpendPathUnspecified {
		return nil, &SpendPathError{Reason: "taprootSpendPath is not valid for an addr(...) descriptor"}
	}

	addr, err := btcutil.DecodeAddress(inner, opts.network())
	if err != nil {
		return nil, &DescriptorParseError{Descriptor: raw, Reason: fmt.Sprintf("invalid address: %v", err)}
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, &DescriptorParseError{Descriptor: raw, Reason: fmt.Sprintf("cannot build script for address: %v", err)}
	}

	isSegwit := false
	switch addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash, *btcutil.AddressWitnessScriptHash, *btcutil.AddressTaproot:
		isSegwit = true
	case *btcutil.AddressScriptHash:
		isSegwit = opts.ShAddressAssumesSegwit
	}

	return &Output{
		raw:          raw,
		network:      opts.network(),
		scriptPubKey: script,
		address:      inner,
		expansion: &Expansion{
			Type:      TypeAddr,
			Keys:      map[string]*keyexpr.KeyInfo{},
			IsSegwit:  isSegwit,
			Canonical: raw,
		},
		guessedAddrType: addr,
		shAssumesSegwit: opts.ShAddressAssumesSegwit,
		preimages:       opts.Preimages,
	}, nil
}

func buildPk(raw, inner string, opts Options) (*Output, error) {
	ki, ranged, err := resolveKey(inner, opts, false, false)
	if err != nil {
		return nil, err
	}
	script, err := txscript.NewScriptBuilder().
		AddData(ki.PubKey).AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return nil, err
	}
	return &Output{
		raw: raw, network: opts.network(), scriptPubKey: script,
		expansion: &Expansion{
			Type: TypePK, IsRanged: ranged,
			Keys:      map[string]*keyexpr.KeyInfo{"@0": ki},
			Canonical: raw,
		},
		preimages: opts.Preimages,
	}, nil
}

func buildPkh(raw, inner string, opts Options) (*Output, error) {
	ki, ranged, err := resolveKey(inner, opts, false, false)
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(ki.PubKey), opts.network())
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	return &Output{
		raw: raw, network: opts.network(), scriptPubKey: script, address: addr.EncodeAddress(),
		expansion: &Expansion{
			Type: TypePKH, IsRanged: ranged,
			Keys:      map[string]*keyexpr.KeyInfo{"@0": ki},
			Canonical: raw,
		},
		preimages: opts.Preimages,
	}, nil
}

func buildWpkh(raw, inner string, opts Options) (*Output, error) {
	ki, ranged, err := resolveKey(inner, opts, true, false)
	if err != nil {
		return nil, err
	}
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(ki.PubKey), opts.network())
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	return &Output{
		raw: raw, network: opts.network(), scriptPubKey: script, address: addr.EncodeAddress(),
		expansion: &Expansion{
			Type: TypeWPKH, IsSegwit: true, IsRanged: ranged,
			Keys:      map[string]*keyexpr.KeyInfo{"@0": ki},
			Canonical: raw,
		},
		preimages: opts.Preimages,
	}, nil
}

func buildSh(raw, inner string, opts Options) (*Output, error) {
	if name, innerInner, ok := parseCall(inner); ok && name == "wpkh" {
		out, err := buildWpkh(raw, innerInner, opts)
		if err != nil {
			return nil, err
		}
		return wrapInP2SH(out, TypeShWPKH, opts)
	}
	if name, innerInner, ok := parseCall(inner); ok && name == "wsh" {
		out, err := buildWsh(raw, innerInner, opts)
		if err != nil {
			return nil, err
		}
		return wrapInP2SH(out, TypeShWSH, opts)
	}

	expansion, err := miniscript.Expand(inner, opts.keyexprOptions(false, false), opts.Index, opts.Change)
	if err != nil {
		return nil, err
	}
	if !opts.RelaxedShMS && !shTopLevelAllow[expansion.Node.Frag] {
		return nil, &miniscript.MiniscriptSanityError{
			Reason: fmt.Sprintf("fragment %q is not allowed at the top level of sh(...)", expansion.Node.Frag),
		}
	}

	redeemScript, sane, err := miniscript.DefaultEngine{}.Compile(expansion.Node, expansion.Map)
	if err != nil {
		return nil, err
	}
	if !sane {
		return nil, &miniscript.MiniscriptSanityError{Reason: "sh(MS) miniscript failed the sanity check"}
	}
	if len(redeemScript) > 520 {
		return nil, &miniscript.ScriptPolicyError{
			Reason: "sh(MS) redeem script exceeds the 520-byte P2SH limit",
			Limit:  520, Actual: len(redeemScript),
		}
	}

	addr, err := btcutil.NewAddressScriptHash(redeemScript, opts.network())
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &Output{
		raw: raw, network: opts.network(), scriptPubKey: script, address: addr.EncodeAddress(),
		redeemScript: redeemScript,
		expansion: &Expansion{
			Type: TypeShMS, Keys: expansion.Map, Miniscript: expansion,
			IsRanged: expansion.Ranged, Canonical: raw,
		},
		preimages: opts.Preimages,
	}, nil
}

func buildWsh(raw, inner string, opts Options) (*Output, error) {
	expansion, err := miniscript.Expand(inner, opts.keyexprOptions(true, false), opts.Index, opts.Change)
	if err != nil {
		return nil, err
	}
	witnessScript, sane, err := miniscript.DefaultEngine{}.Compile(expansion.Node, expansion.Map)
	if err != nil {
		return nil, err
	}
	if !sane {
		return nil, &miniscript.MiniscriptSanityError{Reason: "wsh miniscript failed the sanity check"}
	}
	if len(witnessScript) > 3600 {
		return nil, &miniscript.ScriptPolicyError{
			Reason: "witness script exceeds the 3600-byte P2WSH limit",
			Limit:  3600, Actual: len(witnessScript),
		}
	}

	scriptHash := sha256.Sum256(witnessScript)
	addr, err := btcutil.NewAddressWitnessScriptHash(scriptHash[:], opts.network())
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}

	return &Output{
		raw: raw, network: opts.network(), scriptPubKey: script, address: addr.EncodeAddress(),
		witnessScript: witnessScript,
		expansion: &Expansion{
			Type: TypeWSH, IsSegwit: true, Keys: expansion.Map, Miniscript: expansion,
			IsRanged: expansion.Ranged, Canonical: raw,
		},
		preimages: opts.Preimages,
	}, nil
}

// wrapInP2SH rewraps an already-built nested-segwit Output's scriptPubKey
// as its redeemScript, setting the P2SH scriptPubKey/address in its place.
func wrapInP2SH(inner *Output, t ScriptType, opts Options) (*Output, error) {
	addr, err := btcutil.NewAddressScriptHash(inner.scriptPubKey, opts.network())
	if err != nil {
		return nil, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	inner.redeemScript = inner.scriptPubKey
	inner.scriptPubKey = script
	inner.address = addr.EncodeAddress()
	inner.expansion.Type = t
	return inner, nil
}

func buildTr(raw, inner string, opts Options) (*Output, error) {
	left, right, hasTree := splitTopLevelComma(inner)
	if !hasTree {
		left = inner
	}

	ki, ranged, err := resolveKey(left, opts, true, true)
	if err != nil {
		return nil, err
	}
	internalXOnly := ki.XOnly()

	expansion := &Expansion{
		Keys: map[string]*keyexpr.KeyInfo{"@internal": ki},
		IsSegwit: true, IsTaproot: true, IsRanged: ranged,
		InternalKey: ki, Canonical: raw,
	}

	if !hasTree {
		if opts.TaprootSpendPath == SpendPathScript {
			return nil, &SpendPathError{Reason: "taprootSpendPath=script requires a tr(KEY,TREE) descriptor"}
		}
		expansion.Type = TypeTrKeyOnly
		script, err := taproot.ScriptPubKey(internalXOnly, nil)
		if err != nil {
			return nil, err
		}
		addr, err := taprootAddress(script, opts.network())
		if err != nil {
			return nil, err
		}
		return &Output{
			raw: raw, network: opts.network(), scriptPubKey: script, address: addr,
			internalKey: ki, expansion: expansion, preimages: opts.Preimages,
		}, nil
	}

	root, err := taproot.ParseTree(right)
	if err != nil {
		return nil, err
	}
	if err := taproot.CompileTree(root, opts.keyexprOptions(true, true), opts.Index, opts.Change); err != nil {
		return nil, err
	}

	expansion.Type = TypeTrTree
	expansion.TapTree = root
	for _, leaf := range taproot.Leaves(root) {
		expansion.IsRanged = expansion.IsRanged || leaf.Expansion.Ranged
		for k, v := range leaf.Expansion.Map {
			expansion.Keys[leaf.Source+":"+k] = v
		}
	}

	script, err := taproot.ScriptPubKey(internalXOnly, root)
	if err != nil {
		return nil, err
	}
	addr, err := taprootAddress(script, opts.network())
	if err != nil {
		return nil, err
	}

	return &Output{
		raw: raw, network: opts.network(), scriptPubKey: script, address: addr,
		internalKey: ki, tapTree: root, taprootSpendPath: opts.TaprootSpendPath,
		expansion: expansion, preimages: opts.Preimages,
	}, nil
}

// taprootAddress decodes script (an `OP_1 <32-byte Q>` witness program)
// back into its bech32m address encoding.
func taprootAddress(script []byte, network *chaincfg.Params) (string, error) {
	if len(script) != 34 {
		return "", &DescriptorParseError{Reason: "taproot scriptPubKey has unexpected length"}
	}
	addr, err := btcutil.NewAddressTaproot(script[2:], network)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
