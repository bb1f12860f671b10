// Package taproot implements spec.md §4.7's tapscript tree engine: parsing
// the descriptor `{L,R}` tree grammar, compiling each leaf's miniscript,
// computing the BIP341 merkle root and output-key tweak, assembling
// control blocks, and selecting a leaf to spend during finalization.
//
// Grounded on cmd/chantools/rescuetweakedkey.go's tap-tweak computation and
// cmd/chantools/sweeptaprootassets.go's tapscript/control-block assembly,
// generalized from chantools's single fixed script to an arbitrary,
// descriptor-supplied tree shape.
package taproot

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"

	"github.com/lightninglabs/chantools/descriptors/keyexpr"
	"github.com/lightninglabs/chantools/descriptors/miniscript"
)

// LeafVersion is the tapscript leaf version this library compiles against,
// per BIP342.
const LeafVersion = byte(txscript.BaseLeafVersion)

// Leaf is one compiled tapscript leaf of a taproot tree.
type Leaf struct {
	// Source is the raw miniscript text exactly as it appeared in the
	// descriptor's tree syntax, used for textual leaf-selection hints.
	Source string

	Expansion *miniscript.Expansion

	Script      []byte
	LeafVersion byte
	LeafHash    chainhash.Hash
}

// Node is one node of a parsed taproot tree: exactly one of Leaf or
// (Left, Right) is set.
type Node struct {
	Leaf        *Leaf
	Left, Right *Node
}

// ParseTree parses the `LEAF | {TREE,TREE}` grammar into a Node tree,
// without compiling any leaf's miniscript yet.
func ParseTree(s string) (*Node, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &Error{Reason: "empty taproot tree expression"}
	}

	if s[0] == '{' {
		if s[len(s)-1] != '}' {
			return nil, &Error{Reason: fmt.Sprintf("unbalanced tree braces in %q", s)}
		}
		left, right, err := splitTreeTop(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		leftNode, err := ParseTree(left)
		if err != nil {
			return nil, err
		}
		rightNode, err := ParseTree(right)
		if err != nil {
			return nil, err
		}
		return &Node{Left: leftNode, Right: rightNode}, nil
	}

	return &Node{Leaf: &Leaf{Source: s}}, nil
}

// splitTreeTop splits a "{...}" tree's interior on its single top-level
// comma, respecting nested braces and the parentheses of miniscript leaves.
func splitTreeTop(s string) (left, right string, err error) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '(':
			depth++
		case '}', ')':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), nil
			}
		}
	}
	return "", "", &Error{Reason: fmt.Sprintf("tree branch %q has no top-level comma", s)}
}

// CompileTree expands and compiles every leaf's miniscript in place.
func CompileTree(root *Node, opts keyexpr.Options, index, change *uint32) error {
	if root == nil {
		return nil
	}
	if root.Leaf != nil {
		expansion, err := miniscript.Expand(root.Leaf.Source, opts, index, change)
		if err != nil {
			return fmt.Errorf("taproot leaf %q: %w", root.Leaf.Source, err)
		}
		script, sane, err := miniscript.DefaultEngine{}.Compile(expansion.Node, expansion.Map)
		if err != nil {
			return fmt.Errorf("taproot leaf %q: %w", root.Leaf.Source, err)
		}
		if !sane {
			return &miniscript.MiniscriptSanityError{
				Reason: fmt.Sprintf("leaf %q failed the miniscript sanity check", root.Leaf.Source),
			}
		}

		root.Leaf.Expansion = expansion
		root.Leaf.Script = script
		root.Leaf.LeafVersion = LeafVersion
		root.Leaf.LeafHash = txscript.NewTapLeaf(txscript.BaseLeafVersion, script).TapHash()
		return nil
	}

	if err := CompileTree(root.Left, opts, index, change); err != nil {
		return err
	}
	return CompileTree(root.Right, opts, index, change)
}

// Leaves returns every leaf in the tree, left-to-right.
func Leaves(root *Node) []*Leaf {
	if root == nil {
		return nil
	}
	if root.Leaf != nil {
		return []*Leaf{root.Leaf}
	}
	return append(Leaves(root.Left), Leaves(root.Right)...)
}

func toTapNode(n *Node) txscript.TapNode {
	if n.Leaf != nil {
		return txscript.NewTapLeaf(
			txscript.TapscriptLeafVersion(n.Leaf.LeafVersion), n.Leaf.Script,
		)
	}
	return txscript.NewTapBranch(toTapNode(n.Left), toTapNode(n.Right))
}

// MerkleRoot computes the tree's BIP341 merkle root. root may be nil, for a
// key-path-only taproot output with no script tree.
func MerkleRoot(root *Node) []byte {
	if root == nil {
		return nil
	}
	h := toTapNode(root).TapHash()
	return h[:]
}

// proofs returns, for every leaf, the list of sibling node hashes on the
// path from that leaf to the root, in leaf-to-root order.
func proofs(root *Node) map[*Leaf][][]byte {
	out := map[*Leaf][][]byte{}
	var walk func(n *Node, path [][]byte)
	walk = func(n *Node, path [][]byte) {
		if n.Leaf != nil {
			cp := make([][]byte, len(path))
			copy(cp, path)
			out[n.Leaf] = cp
			return
		}
		leftHash := toTapNode(n.Left).TapHash()
		rightHash := toTapNode(n.Right).TapHash()

		leftPath := make([][]byte, len(path), len(path)+1)
		copy(leftPath, path)
		leftPath = append(leftPath, rightHash[:])

		rightPath := make([][]byte, len(path), len(path)+1)
		copy(rightPath, path)
		rightPath = append(rightPath, leftHash[:])

		walk(n.Left, leftPath)
		walk(n.Right, rightPath)
	}
	if root != nil {
		walk(root, nil)
	}
	return out
}

// MerkleProof returns leaf's sibling-hash path to the tree root.
func MerkleProof(root *Node, leaf *Leaf) [][]byte {
	return proofs(root)[leaf]
}
