package taproot

import (
	"bytes"
	"encoding/hex"

	"github.com/lightninglabs/chantools/descriptors/miniscript"
)

// LeafHint pins a specific leaf for finalization, by its tapLeafHash or by
// the exact miniscript text it was written with.
type LeafHint struct {
	LeafHash   []byte
	Miniscript string
}

// Selection is a fully resolved script-path spend: the chosen leaf, its
// witness-stack satisfaction, and its merkle inclusion proof.
type Selection struct {
	Leaf        *Leaf
	Witness     *miniscript.Satisfaction
	MerkleProof [][]byte
}

// SelectLeaf picks the leaf to spend from, per spec.md §4.7: the leaf
// matching hint if one was supplied (failing with an ambiguity error if the
// hint is textual and more than one leaf shares that text), otherwise the
// satisfiable leaf with the smallest serialized witness.
func SelectLeaf(root *Node, hint *LeafHint, knowns miniscript.Knowns) (*Selection, error) {
	leaves := Leaves(root)
	if len(leaves) == 0 {
		return nil, &Error{Reason: "taproot tree has no leaves"}
	}

	if hint != nil {
		matches := matchHint(leaves, hint)
		switch len(matches) {
		case 0:
			return nil, &Error{Reason: "hinted leaf not found in tree"}
		case 1:
			leaf := matches[0]
			witness, err := miniscript.Satisfy(leaf.Expansion.Node, leaf.Expansion.Map, knowns)
			if err != nil {
				return nil, err
			}
			return &Selection{Leaf: leaf, Witness: witness, MerkleProof: MerkleProof(root, leaf)}, nil
		default:
			return nil, &Error{Reason: "leaf hint is ambiguous: matched by more than one leaf"}
		}
	}

	var best *Selection
	bestSize := -1
	for _, leaf := range leaves {
		witness, err := miniscript.Satisfy(leaf.Expansion.Node, leaf.Expansion.Map, knowns)
		if err != nil {
			continue
		}
		proof := MerkleProof(root, leaf)
		size := witnessSize(witness, leaf, proof)
		if best == nil || size < bestSize {
			best = &Selection{Leaf: leaf, Witness: witness, MerkleProof: proof}
			bestSize = size
		}
	}
	if best == nil {
		return nil, &Error{Reason: "no satisfiable leaf"}
	}
	return best, nil
}

// SelectLeafBySignatures is SelectLeaf generalized to a tree whose leaves
// were each expanded independently (so "@0", "@1", ... are leaf-local and
// must not be compared across leaves): sigsByXOnlyHex keys a signature by
// the lowercase hex of the taproot x-only public key it was made under,
// and each leaf's own Knowns is rebuilt from its own ExpansionMap before
// it is tried.
func SelectLeafBySignatures(root *Node, hint *LeafHint, sigsByXOnlyHex map[string][]byte, preimages map[string][]byte) (*Selection, error) {
	leaves := Leaves(root)
	if len(leaves) == 0 {
		return nil, &Error{Reason: "taproot tree has no leaves"}
	}

	if hint != nil {
		matches := matchHint(leaves, hint)
		switch len(matches) {
		case 0:
			return nil, &Error{Reason: "hinted leaf not found in tree"}
		case 1:
			leaf := matches[0]
			witness, err := miniscript.Satisfy(leaf.Expansion.Node, leaf.Expansion.Map, knownsForLeaf(leaf, sigsByXOnlyHex, preimages))
			if err != nil {
				return nil, err
			}
			return &Selection{Leaf: leaf, Witness: witness, MerkleProof: MerkleProof(root, leaf)}, nil
		default:
			return nil, &Error{Reason: "leaf hint is ambiguous: matched by more than one leaf"}
		}
	}

	var best *Selection
	bestSize := -1
	for _, leaf := range leaves {
		witness, err := miniscript.Satisfy(leaf.Expansion.Node, leaf.Expansion.Map, knownsForLeaf(leaf, sigsByXOnlyHex, preimages))
		if err != nil {
			continue
		}
		proof := MerkleProof(root, leaf)
		size := witnessSize(witness, leaf, proof)
		if best == nil || size < bestSize {
			best = &Selection{Leaf: leaf, Witness: witness, MerkleProof: proof}
			bestSize = size
		}
	}
	if best == nil {
		return nil, &Error{Reason: "no satisfiable leaf"}
	}
	return best, nil
}

// FakeKnowns builds a Knowns usable to discover root's leaves' locktime/
// sequence floor before any real signature exists, per spec.md §4.6's
// "fake 72-byte zero signatures" trick generalized across every leaf's
// independently numbered placeholders.
func FakeKnowns(root *Node) miniscript.Knowns {
	sigs := map[string][]byte{}
	preimages := map[string][]byte{}
	fakeSig := bytes.Repeat([]byte{0x00}, 72)
	fakePreimage := bytes.Repeat([]byte{0x00}, 32)

	for _, leaf := range Leaves(root) {
		if leaf.Expansion == nil {
			continue
		}
		leaf.Expansion.Node.Walk(func(n *miniscript.Node) {
			switch n.Frag {
			case miniscript.FragPkK, miniscript.FragPkH:
				sigs[n.Key] = fakeSig
			case miniscript.FragMulti, miniscript.FragMultiA, miniscript.FragSortedMu, miniscript.FragSortedMuA:
				for _, k := range n.Keys {
					sigs[k] = fakeSig
				}
			case miniscript.FragSha256, miniscript.FragHash256, miniscript.FragRipemd160, miniscript.FragHash160:
				preimages[n.Digest] = fakePreimage
			}
		})
	}
	return miniscript.Knowns{Signatures: sigs, Preimages: preimages}
}

func knownsForLeaf(leaf *Leaf, sigsByXOnlyHex map[string][]byte, preimages map[string][]byte) miniscript.Knowns {
	sigs := map[string][]byte{}
	for placeholder, ki := range leaf.Expansion.Map {
		if sig, ok := sigsByXOnlyHex[hex.EncodeToString(ki.XOnly())]; ok {
			sigs[placeholder] = sig
		}
	}
	return miniscript.Knowns{Signatures: sigs, Preimages: preimages}
}

func matchHint(leaves []*Leaf, hint *LeafHint) []*Leaf {
	var matches []*Leaf
	switch {
	case len(hint.LeafHash) > 0:
		for _, l := range leaves {
			if bytes.Equal(l.LeafHash[:], hint.LeafHash) {
				matches = append(matches, l)
			}
		}
	case hint.Miniscript != "":
		for _, l := range leaves {
			if l.Source == hint.Miniscript {
				matches = append(matches, l)
			}
		}
	}
	return matches
}

func witnessSize(w *miniscript.Satisfaction, leaf *Leaf, proof [][]byte) int {
	size := len(leaf.Script) + 33 + 32*len(proof)
	for _, item := range w.Stack {
		size += len(item) + 1
	}
	return size
}
