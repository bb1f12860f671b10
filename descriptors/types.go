// Package descriptors implements spec.md's descriptor expander and Output
// object (components 8 and 9): top-level grammar dispatch over
// pk/pkh/wpkh/sh/wsh/tr/addr, producing an immutable Output that can
// compute its scripts, its miniscript/taproot satisfaction, and its PSBT
// input/output metadata.
package descriptors

import (
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/lightninglabs/chantools/descriptors/keyexpr"
	"github.com/lightninglabs/chantools/descriptors/miniscript"
	"github.com/lightninglabs/chantools/descriptors/taproot"
)

// SpendPath pins which taproot spend path a descriptor's PSBT metadata
// should be shaped for.
type SpendPath string

const (
	// SpendPathUnspecified leaves both key-path and script-path metadata
	// available (the default).
	SpendPathUnspecified SpendPath = ""
	SpendPathKey         SpendPath = "key"
	SpendPathScript      SpendPath = "script"
)

// ScriptType identifies which of §4.8's grammar forms an Output was built
// from.
type ScriptType int

const (
	TypeAddr ScriptType = iota
	TypePK
	TypePKH
	TypeWPKH
	TypeShWPKH
	TypeWSH
	TypeShWSH
	TypeShMS
	TypeTrKeyOnly
	TypeTrTree
)

// Options configures Parse. Network defaults to mainnet if nil.
type Options struct {
	// Index substitutes a ranged descriptor's "*" wildcards.
	Index *uint32
	// Change resolves a multipath descriptor's "<a;b;...>" tuples.
	Change *uint32

	Network *chaincfg.Params

	// TaprootSpendPath forces a taproot Output's PSBT metadata to
	// include or omit tapLeafScript entries.
	TaprootSpendPath SpendPath

	// RelaxedShMS allows any miniscript (not just
	// pk/pkh/multi/sortedmulti/multi_a/sortedmulti_a) at the top
	// level of sh(MS), relaxing §4.8's default restriction.
	RelaxedShMS bool

	// ShAddressAssumesSegwit resolves spec.md §9's open question: whether
	// addr(SH_ADDRESS) should guess sh(wpkh(...)) (true, newer posture)
	// or a bare legacy P2SH (false, this library's default). It only
	// affects guessOutput()/inputWeight() bookkeeping for an addr(...)
	// Output — it can never recover the actual redeemScript, since a
	// P2SH address alone doesn't carry one.
	ShAddressAssumesSegwit bool

	// Preimages supplies hash preimages (keyed by lowercase hex digest)
	// available when computing this Output's satisfaction.
	Preimages map[string][]byte

	// AuthorizedSigners restricts which keys are considered
	// authorized to sign this Output; nil means every key in the
	// expansion map is authorized (spec.md §4.9's default).
	AuthorizedSigners []*keyexpr.KeyInfo

	// Warn receives out-of-band warnings (e.g. a segwit input added
	// without its full previous transaction, which lets a signer be lied
	// to about the amount it commits to). Nil discards them; warnings
	// never abort an operation.
	Warn func(msg string)
}

func (o Options) network() *chaincfg.Params {
	if o.Network != nil {
		return o.Network
	}
	return &chaincfg.MainNetParams
}

func (o Options) keyexprOptions(isSegwit, isTaproot bool) keyexpr.Options {
	return keyexpr.Options{IsSegwit: isSegwit, IsTaproot: isTaproot, Network: o.network()}
}

// Expansion is the destructured form of a descriptor, per spec.md §3: the
// chosen script family, every key placeholder and its KeyInfo, the
// expanded miniscript (if any), and the script-type flags.
type Expansion struct {
	Type ScriptType

	// Keys maps every key placeholder used anywhere in this descriptor
	// (its single key for pk/pkh/wpkh/tr(KEY), or every "@i" miniscript
	// placeholder) to its resolved KeyInfo.
	Keys map[string]*keyexpr.KeyInfo

	// Miniscript is set for wsh/sh(wsh)/sh(ms) and every taproot leaf.
	Miniscript *miniscript.Expansion

	// TapTree is set for tr(KEY,TREE).
	TapTree *taproot.Node
	// InternalKey is set for every taproot form.
	InternalKey *keyexpr.KeyInfo

	IsSegwit  bool
	IsTaproot bool
	IsRanged  bool

	// Canonical is the descriptor text with its checksum stripped and
	// every wildcard/multipath element resolved for the given index and
	// change.
	Canonical string
}
