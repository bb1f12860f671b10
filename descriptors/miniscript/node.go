// Package miniscript implements expansion (key-expression -> @i
// placeholder substitution), compilation to Bitcoin Script, and
// satisfaction (lowest-cost non-malleable witness construction) for the
// miniscript fragments spec.md's descriptor expander can emit inside
// wsh/sh(wsh)/sh(MS) and taproot leaf scripts.
//
// Per spec.md §4.5/§4.6 and Design Note "External miniscript
// compiler/satisfier", a full reimplementation of the general miniscript
// *policy compiler* is out of scope; what this package implements is the
// fixed, per-fragment Script encoding and satisfaction table a concrete
// miniscript expression already determines (no policy search), exposed
// behind the Engine collaborator interface so a real external compiler
// could be substituted without touching callers.
package miniscript

import (
	"fmt"
	"strconv"
	"strings"
)

// Frag identifies a miniscript fragment or wrapper kind.
type Frag string

const (
	FragPkK   Frag = "pk_k"
	FragPkH   Frag = "pk_h"
	FragOlder Frag = "older"
	FragAfter Frag = "after"

	FragSha256     Frag = "sha256"
	FragHash256    Frag = "hash256"
	FragRipemd160  Frag = "ripemd160"
	FragHash160    Frag = "hash160"
	FragMulti      Frag = "multi"
	FragMultiA     Frag = "multi_a"
	FragSortedMu   Frag = "sortedmulti"
	FragSortedMuA  Frag = "sortedmulti_a"
	FragAndV       Frag = "and_v"
	FragAndB       Frag = "and_b"
	FragOrB        Frag = "or_b"
	FragOrC        Frag = "or_c"
	FragOrD        Frag = "or_d"
	FragOrI        Frag = "or_i"
	FragAndOr      Frag = "andor"
	FragThresh     Frag = "thresh"
	FragTrue       Frag = "true"
	FragFalse      Frag = "false"

	// Wrapper fragments; Children[0] is the wrapped sub-expression.
	WrapA Frag = "a"
	WrapS Frag = "s"
	WrapC Frag = "c"
	WrapD Frag = "d"
	WrapV Frag = "v"
	WrapJ Frag = "j"
	WrapN Frag = "n"
)

// Node is one node of a miniscript abstract syntax tree. Key/Keys hold
// either a raw key expression or, after expansion, an "@i" placeholder —
// Node itself is agnostic to which phase it represents.
type Node struct {
	Frag     Frag
	Key      string   // pk_k / pk_h argument
	Keys     []string // multi / multi_a / sortedmulti / sortedmulti_a key list
	K        int      // threshold for multi*/thresh
	Value    uint32   // older / after argument
	Digest   string   // sha256 / hash256 / ripemd160 / hash160 argument (hex)
	Children []*Node
}

var wrapperChars = map[byte]Frag{
	'a': WrapA, 's': WrapS, 'c': WrapC, 'd': WrapD,
	'v': WrapV, 'j': WrapJ, 'n': WrapN,
}

// ParseNode parses a single miniscript expression (or sub-expression) into
// a Node tree. Key-expression and digest arguments are captured verbatim,
// without validating their shape — that is keyexpr's and the digest
// parser's job.
func ParseNode(s string) (*Node, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("miniscript: empty expression")
	}

	if s == "1" {
		return &Node{Frag: FragTrue}, nil
	}
	if s == "0" {
		return &Node{Frag: FragFalse}, nil
	}

	// Wrapper prefix: one or more wrapper letters followed by ':',
	// applied outermost-first reading left to right, e.g. "sc:pk_k(K)"
	// is s(c(pk_k(K))). "t:", "l:", "u:" are composite sugar handled
	// below since they aren't single simple wraps.
	if idx := strings.IndexByte(s, ':'); idx > 0 {
		prefix := s[:idx]
		if isWrapperPrefix(prefix) {
			inner, err := ParseNode(s[idx+1:])
			if err != nil {
				return nil, err
			}
			node := inner
			for i := len(prefix) - 1; i >= 0; i-- {
				switch prefix[i] {
				case 't':
					node = &Node{Frag: FragAndV, Children: []*Node{node, {Frag: FragTrue}}}
				case 'l':
					node = &Node{Frag: FragOrI, Children: []*Node{{Frag: FragFalse}, node}}
				case 'u':
					node = &Node{Frag: FragOrI, Children: []*Node{node, {Frag: FragFalse}}}
				default:
					wf, ok := wrapperChars[prefix[i]]
					if !ok {
						return nil, fmt.Errorf("miniscript: unknown wrapper %q", string(prefix[i]))
					}
					node = &Node{Frag: wf, Children: []*Node{node}}
				}
			}
			return node, nil
		}
	}

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("miniscript: not a valid fragment: %q", s)
	}
	name := s[:open]
	args := splitArgs(s[open+1 : len(s)-1])

	switch name {
	case "pk":
		return &Node{Frag: WrapC, Children: []*Node{{Frag: FragPkK, Key: arg(args, 0)}}}, nil
	case "pkh":
		return &Node{Frag: WrapC, Children: []*Node{{Frag: FragPkH, Key: arg(args, 0)}}}, nil
	case "pk_k":
		return &Node{Frag: FragPkK, Key: arg(args, 0)}, nil
	case "pk_h":
		return &Node{Frag: FragPkH, Key: arg(args, 0)}, nil
	case "older":
		n, err := parseUint32(arg(args, 0))
		if err != nil {
			return nil, err
		}
		return &Node{Frag: FragOlder, Value: n}, nil
	case "after":
		n, err := parseUint32(arg(args, 0))
		if err != nil {
			return nil, err
		}
		return &Node{Frag: FragAfter, Value: n}, nil
	case "sha256", "hash256", "ripemd160", "hash160":
		return &Node{Frag: Frag(name), Digest: arg(args, 0)}, nil
	case "and_v", "and_b", "or_b", "or_c", "or_d", "or_i":
		if len(args) != 2 {
			return nil, fmt.Errorf("miniscript: %s takes 2 arguments, got %d", name, len(args))
		}
		left, err := ParseNode(args[0])
		if err != nil {
			return nil, err
		}
		right, err := ParseNode(args[1])
		if err != nil {
			return nil, err
		}
		return &Node{Frag: Frag(name), Children: []*Node{left, right}}, nil
	case "andor":
		if len(args) != 3 {
			return nil, fmt.Errorf("miniscript: andor takes 3 arguments, got %d", len(args))
		}
		children := make([]*Node, 3)
		for i, a := range args {
			n, err := ParseNode(a)
			if err != nil {
				return nil, err
			}
			children[i] = n
		}
		return &Node{Frag: FragAndOr, Children: children}, nil
	case "thresh":
		if len(args) < 2 {
			return nil, fmt.Errorf("miniscript: thresh needs a threshold and at least one child")
		}
		k, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("miniscript: invalid thresh count %q: %w", args[0], err)
		}
		children := make([]*Node, 0, len(args)-1)
		for _, a := range args[1:] {
			n, err := ParseNode(a)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
		}
		return &Node{Frag: FragThresh, K: k, Children: children}, nil
	case "multi", "multi_a", "sortedmulti", "sortedmulti_a":
		if len(args) < 2 {
			return nil, fmt.Errorf("miniscript: %s needs a threshold and at least one key", name)
		}
		k, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("miniscript: invalid %s count %q: %w", name, args[0], err)
		}
		return &Node{Frag: Frag(name), K: k, Keys: append([]string{}, args[1:]...)}, nil
	default:
		return nil, fmt.Errorf("miniscript: unrecognized fragment %q", name)
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("miniscript: invalid integer %q: %w", s, err)
	}
	return uint32(n), nil
}

func isWrapperPrefix(prefix string) bool {
	if prefix == "" {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c != 't' && c != 'l' && c != 'u' && wrapperChars[c] == "" {
			return false
		}
	}
	return true
}

// splitArgs splits a fragment's argument list on top-level commas, leaving
// commas nested inside parentheses untouched.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var (
		args  []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args
}

// Walk calls fn for every node in the tree, left-to-right, parent before
// children.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// KeyPlaceholders returns, in left-to-right textual order, a pointer to
// every Key-bearing field in the tree (pk_k/pk_h's Key, and each element of
// multi*/sortedmulti*'s Keys), so callers can resolve and/or rewrite them
// in place.
func (n *Node) KeyPlaceholders() []*string {
	var out []*string
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		switch n.Frag {
		case FragPkK, FragPkH:
			out = append(out, &n.Key)
		case FragMulti, FragMultiA, FragSortedMu, FragSortedMuA:
			for i := range n.Keys {
				out = append(out, &n.Keys[i])
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}
