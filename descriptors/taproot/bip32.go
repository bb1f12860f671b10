package taproot

import (
	"bytes"

	"github.com/lightninglabs/chantools/descriptors/keyexpr"
)

// Bip32Derivation is one `tapBip32Derivation` entry: a BIP32-originated key
// that appears somewhere in the tree (or is the internal key), and the set
// of leaf hashes it is needed to sign for (empty for the internal key).
type Bip32Derivation struct {
	PubKey            []byte // 32-byte x-only
	MasterFingerprint []byte
	Path              []uint32
	LeafHashes        [][]byte
}

// CollectBip32Derivations builds the tapBip32Derivation list for every
// BIP32-originated key across the tree's leaves, merging duplicate public
// keys by concatenating their leaf-hash sets, per spec.md §4.7. internalKey
// is included with an empty LeafHashes set when it carries BIP32 origin
// information.
func CollectBip32Derivations(root *Node, internalKey *keyexpr.KeyInfo) []*Bip32Derivation {
	var out []*Bip32Derivation

	find := func(pub []byte) *Bip32Derivation {
		for _, d := range out {
			if bytes.Equal(d.PubKey, pub) {
				return d
			}
		}
		return nil
	}

	if internalKey != nil && internalKey.ExtendedKey != nil {
		out = append(out, &Bip32Derivation{
			PubKey:            internalKey.XOnly(),
			MasterFingerprint: internalKey.MasterFingerprint,
			Path:              fullPath(internalKey),
		})
	}

	for _, leaf := range Leaves(root) {
		if leaf.Expansion == nil {
			continue
		}
		for _, ki := range leaf.Expansion.Map {
			if ki.ExtendedKey == nil {
				continue
			}
			pub := ki.XOnly()
			if d := find(pub); d != nil {
				d.LeafHashes = append(d.LeafHashes, append([]byte{}, leaf.LeafHash[:]...))
				continue
			}
			out = append(out, &Bip32Derivation{
				PubKey:            pub,
				MasterFingerprint: ki.MasterFingerprint,
				Path:              fullPath(ki),
				LeafHashes:        [][]byte{append([]byte{}, leaf.LeafHash[:]...)},
			})
		}
	}

	return out
}

func fullPath(ki *keyexpr.KeyInfo) []uint32 {
	path := make([]uint32, 0, len(ki.OriginPath)+len(ki.KeyPath))
	path = append(path, ki.OriginPath...)
	path = append(path, ki.KeyPath...)
	return path
}
