// Package keyexpr destructures a single descriptor key expression into a
// KeyInfo, generalizing the fixed-depth BIP-43 derivation chantools's own
// btc.DeriveChildren/ParsePath helpers perform into arbitrary descriptor
// paths carrying origins, wildcards and BIP-389 multipath tuples.
package keyexpr

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// HardenedKeyStart mirrors btc.HardenedKeyStart: the first hardened child
// index, 2^31.
const HardenedKeyStart = uint32(hdkeychain.HardenedKeyStart)

// PathElementKind distinguishes the three shapes a descriptor path segment
// can take.
type PathElementKind int

const (
	// Fixed is a concrete, already-known child index (possibly hardened).
	Fixed PathElementKind = iota
	// Wildcard is a "*" range-descriptor placeholder, resolved later by a
	// caller-supplied index.
	Wildcard
	// MultipathTuple is a "<a;b;...>" placeholder, resolved later by a
	// caller-supplied change value that must appear among its Values.
	MultipathTuple
)

// PathElement is one "/..." component of a key expression's derivation
// path, still carrying whichever of Fixed/Wildcard/MultipathTuple shape it
// was parsed as.
type PathElement struct {
	Kind   PathElementKind
	Value  uint32   // valid when Kind == Fixed
	Values []uint32 // valid when Kind == MultipathTuple
}

// KeyExpr is the partially-parsed form of a key expression: origin and key
// material are fully decoded, but any wildcard or multipath path elements
// are left unresolved until Resolve is called with a concrete index and/or
// multipath change value.
type KeyExpr struct {
	// Expression is the original, unmodified textual key expression.
	Expression string

	// MasterFingerprint is the 4-byte origin fingerprint, nil if the
	// expression carries no "[FP/...]" origin.
	MasterFingerprint []byte
	// OriginPath is the path from the master fingerprint to the
	// extended-key root, present only alongside MasterFingerprint.
	OriginPath []uint32

	// KeyPath is the (possibly still-unresolved) path from the extended
	// key itself to the leaf used for this expression.
	KeyPath []PathElement

	// RawPubKey is set for bare raw-point key expressions (compressed,
	// uncompressed, or x-only promoted to even-parity compressed form).
	RawPubKey []byte

	// PrivKey is set for a WIF-encoded private key expression.
	PrivKey *btcec.PrivateKey
	// WIFCompressed records whether the WIF requested a compressed
	// public key.
	WIFCompressed bool

	// ExtendedKey is set for xpub/xprv key expressions (before KeyPath
	// derivation is applied).
	ExtendedKey *hdkeychain.ExtendedKey

	IsSegwit  bool
	IsTaproot bool

	Network *chaincfg.Params
}

// IsRanged reports whether this key expression contains a wildcard "*"
// anywhere in its key path.
func (k *KeyExpr) IsRanged() bool {
	for _, e := range k.KeyPath {
		if e.Kind == Wildcard {
			return true
		}
	}
	return false
}

// IsMultipath reports whether this key expression contains a "<a;b;...>"
// tuple anywhere in its key path.
func (k *KeyExpr) IsMultipath() bool {
	for _, e := range k.KeyPath {
		if e.Kind == MultipathTuple {
			return true
		}
	}
	return false
}

// MultipathLen returns the shared tuple length across all MultipathTuple
// elements (0 if none), and an error if tuples of differing lengths are
// present (callers must reject that case per spec).
func (k *KeyExpr) MultipathLen() (int, error) {
	n := 0
	for _, e := range k.KeyPath {
		if e.Kind != MultipathTuple {
			continue
		}
		if n == 0 {
			n = len(e.Values)
			continue
		}
		if len(e.Values) != n {
			return 0, &RangeError{Reason: "multipath tuples in a " +
				"single key expression must share the same length"}
		}
	}
	return n, nil
}

// KeyInfo is the fully (or partially, for an unresolved ranged key)
// resolved form of a key expression, per spec.md §3.
type KeyInfo struct {
	// Expression is the original textual key expression.
	Expression string

	// PubKey is the derived public key. Absent (nil) only for an
	// unresolved ranged key that was never given a concrete index.
	// 33-byte compressed, 65-byte uncompressed, or 32-byte x-only for
	// taproot outputs.
	PubKey []byte

	// ExtendedKey is set when this key originated from an xpub/xprv.
	ExtendedKey *hdkeychain.ExtendedKey
	// PrivKey is set when a private scalar is known (WIF or xprv).
	PrivKey *btcec.PrivateKey

	MasterFingerprint []byte
	OriginPath        []uint32
	KeyPath           []uint32
	// FullPath is the composed "m/..." path, empty if no extended key
	// origin is known (e.g. a bare raw pubkey).
	FullPath string

	IsSegwit  bool
	IsTaproot bool
}

// XOnly returns the 32-byte x-only form of the public key: PubKey itself
// when it is 32 bytes, or a 33-byte compressed PubKey without its prefix
// byte. It returns nil for any other PubKey length.
func (ki *KeyInfo) XOnly() []byte {
	if len(ki.PubKey) == 32 {
		return ki.PubKey
	}
	if len(ki.PubKey) == 33 {
		return ki.PubKey[1:]
	}
	return nil
}
