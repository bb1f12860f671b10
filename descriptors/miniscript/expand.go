package miniscript

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/lightninglabs/chantools/descriptors/keyexpr"
)

// Expansion is the result of substituting every key expression inside a
// raw miniscript string with an "@i" placeholder, per spec.md §4.5.
type Expansion struct {
	// Node is the miniscript AST with every Key/Keys field holding an
	// "@i" placeholder instead of the original key expression text.
	Node *Node
	// Map resolves each placeholder back to the KeyInfo it came from.
	Map ExpansionMap
	// Text is Node re-serialized to miniscript syntax, "@i" placeholders
	// and all — the form an external CompilerSatisfier operates on.
	Text string

	// Ranged is true if any embedded key expression carries a "*"
	// wildcard; Multipath if any carries a "<a;b;...>" tuple.
	Ranged    bool
	Multipath bool
}

// Expand parses raw (a miniscript expression with literal key expressions,
// not yet placeholder-substituted) and resolves every embedded key against
// opts/index/change, replacing it with an "@i" placeholder in left-to-right
// order. sortedmulti/sortedmulti_a key lists are reordered into ascending
// lexicographic order by resolved public key before placeholders are
// assigned, mirroring BIP67.
func Expand(raw string, opts keyexpr.Options, index, change *uint32) (*Expansion, error) {
	node, err := ParseNode(raw)
	if err != nil {
		return nil, err
	}

	e := &expander{opts: opts, index: index, change: change, assigned: ExpansionMap{}}
	if err := e.walk(node); err != nil {
		return nil, err
	}

	// Duplicate resolved pubkeys are forbidden anywhere inside a single
	// expanded miniscript, not just inside one multi() key list.
	placeholders := make([]string, 0, len(e.assigned))
	for p := range e.assigned {
		placeholders = append(placeholders, p)
	}
	sort.Strings(placeholders)
	for i := 0; i < len(placeholders); i++ {
		for j := i + 1; j < len(placeholders); j++ {
			a, b := e.assigned[placeholders[i]], e.assigned[placeholders[j]]
			if len(a.PubKey) > 0 && bytes.Equal(a.PubKey, b.PubKey) {
				return nil, &MiniscriptSanityError{Reason: fmt.Sprintf(
					"duplicate public key across placeholders %s and %s",
					placeholders[i], placeholders[j])}
			}
		}
	}

	return &Expansion{
		Node: node, Map: e.assigned, Text: Serialize(node),
		Ranged: e.ranged, Multipath: e.multipath,
	}, nil
}

type expander struct {
	opts      keyexpr.Options
	index     *uint32
	change    *uint32
	assigned  ExpansionMap
	next      int
	ranged    bool
	multipath bool
}

func (e *expander) resolve(exprText string) (*keyexpr.KeyInfo, error) {
	ke, err := keyexpr.Parse(exprText, e.opts)
	if err != nil {
		return nil, err
	}
	e.ranged = e.ranged || ke.IsRanged()
	e.multipath = e.multipath || ke.IsMultipath()
	return ke.Resolve(e.index, e.change)
}

func (e *expander) assign(ki *keyexpr.KeyInfo) string {
	placeholder := fmt.Sprintf("@%d", e.next)
	e.next++
	e.assigned[placeholder] = ki
	return placeholder
}

func (e *expander) walk(n *Node) error {
	if n == nil {
		return nil
	}

	switch n.Frag {
	case FragPkK, FragPkH:
		ki, err := e.resolve(n.Key)
		if err != nil {
			return fmt.Errorf("miniscript: %s: %w", n.Frag, err)
		}
		n.Key = e.assign(ki)
		return nil

	case FragMulti, FragMultiA, FragSortedMu, FragSortedMuA:
		type pair struct {
			text string
			ki   *keyexpr.KeyInfo
		}
		pairs := make([]pair, len(n.Keys))
		for i, text := range n.Keys {
			ki, err := e.resolve(text)
			if err != nil {
				return fmt.Errorf("miniscript: %s: %w", n.Frag, err)
			}
			pairs[i] = pair{text: text, ki: ki}
		}

		for i := 0; i < len(pairs); i++ {
			for j := i + 1; j < len(pairs); j++ {
				if bytes.Equal(pairs[i].ki.PubKey, pairs[j].ki.PubKey) {
					return &MiniscriptSanityError{Reason: fmt.Sprintf(
						"%s contains a duplicate public key", n.Frag)}
				}
			}
		}

		if n.Frag == FragSortedMu || n.Frag == FragSortedMuA {
			sort.SliceStable(pairs, func(i, j int) bool {
				return bytes.Compare(pairs[i].ki.PubKey, pairs[j].ki.PubKey) < 0
			})
		}

		if n.K < 1 || n.K > len(pairs) {
			return &MiniscriptSanityError{Reason: fmt.Sprintf(
				"%s threshold %d out of range for %d keys", n.Frag, n.K, len(pairs))}
		}

		for i, p := range pairs {
			n.Keys[i] = e.assign(p.ki)
		}
		return nil
	}

	for _, c := range n.Children {
		if err := e.walk(c); err != nil {
			return err
		}
	}
	return nil
}
