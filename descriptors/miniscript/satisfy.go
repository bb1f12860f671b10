package miniscript

import "fmt"

// Knowns is the signature/preimage material available to Satisfy. keyed by
// the "@i" placeholder (for Signatures) or the lowercase-hex digest (for
// Preimages), matching how Expand and compileNode reference them.
type Knowns struct {
	Signatures map[string][]byte
	Preimages  map[string][]byte
}

// Satisfaction is a complete, non-malleable witness-stack solution for a
// miniscript expression, plus any nLockTime/nSequence floor it imposes.
type Satisfaction struct {
	Stack    [][]byte
	LockTime *uint32
	Sequence *uint32
}

// wit is the internal representation threaded through the recursive
// satisfier; Satisfaction is its caller-facing projection. Stacks are kept
// in serialized witness order (first item is the bottom of the initial
// stack), so a fragment whose script executes earlier contributes its
// items closer to the end.
type wit struct {
	stack    [][]byte
	lockTime *uint32
	sequence *uint32
}

func (w *wit) cost() int {
	n := 0
	for _, item := range w.stack {
		n += len(item) + 1
	}
	return n
}

func cloneWit(w *wit) *wit {
	if w == nil {
		return nil
	}
	stack := make([][]byte, len(w.stack))
	copy(stack, w.stack)
	return &wit{stack: stack, lockTime: w.lockTime, sequence: w.sequence}
}

func appendWit(w *wit, items ...[]byte) *wit {
	c := cloneWit(w)
	if c == nil {
		c = &wit{}
	}
	c.stack = append(c.stack, items...)
	return c
}

func concatWit(a, b *wit) (*wit, error) {
	lt, err := mergeUint32(a.lockTime, b.lockTime)
	if err != nil {
		return nil, err
	}
	seq, err := mergeUint32(a.sequence, b.sequence)
	if err != nil {
		return nil, err
	}
	stack := append(append([][]byte{}, a.stack...), b.stack...)
	return &wit{stack: stack, lockTime: lt, sequence: seq}, nil
}

func mergeUint32(a, b *uint32) (*uint32, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	v := *a
	if *b > v {
		v = *b
	}
	return &v, nil
}

var (
	trueMarker  = []byte{1}
	falseMarker = []byte{}
)

// Satisfy builds the cheapest non-malleable witness stack for node, given
// the resolved keys in expansion and the signatures/preimages in knowns.
func Satisfy(node *Node, expansion ExpansionMap, knowns Knowns) (*Satisfaction, error) {
	w, err := satisfy(node, expansion, knowns)
	if err != nil {
		return nil, err
	}
	return &Satisfaction{Stack: w.stack, LockTime: w.lockTime, Sequence: w.sequence}, nil
}

func satisfy(n *Node, exp ExpansionMap, k Knowns) (*wit, error) {
	switch n.Frag {
	case FragTrue:
		return &wit{}, nil
	case FragFalse:
		return nil, &SatisfactionError{Reason: "false fragment is never satisfiable"}

	case FragPkK:
		sig, ok := k.Signatures[n.Key]
		if !ok {
			return nil, &SatisfactionError{Reason: fmt.Sprintf("no signature known for %s", n.Key)}
		}
		return &wit{stack: [][]byte{sig}}, nil

	case FragPkH:
		sig, ok := k.Signatures[n.Key]
		if !ok {
			return nil, &SatisfactionError{Reason: fmt.Sprintf("no signature known for %s", n.Key)}
		}
		ki, err := exp.lookup(n.Key)
		if err != nil {
			return nil, err
		}
		return &wit{stack: [][]byte{sig, ki.PubKey}}, nil

	case FragOlder:
		v := n.Value
		return &wit{sequence: &v}, nil

	case FragAfter:
		v := n.Value
		return &wit{lockTime: &v}, nil

	case FragSha256, FragHash256, FragRipemd160, FragHash160:
		preimage, ok := k.Preimages[n.Digest]
		if !ok {
			return nil, &SatisfactionError{Reason: fmt.Sprintf("no preimage known for %s", n.Digest)}
		}
		return &wit{stack: [][]byte{preimage}}, nil

	case FragMulti, FragSortedMu:
		var sigs [][]byte
		for _, key := range n.Keys {
			if sig, ok := k.Signatures[key]; ok {
				sigs = append(sigs, sig)
				if len(sigs) == n.K {
					break
				}
			}
		}
		if len(sigs) < n.K {
			return nil, &SatisfactionError{Reason: "not enough known signatures for multi()"}
		}
		stack := append([][]byte{falseMarker}, sigs...)
		return &wit{stack: stack}, nil

	case FragMultiA, FragSortedMuA:
		// CHECKSIGADD consumes one stack element per key, the first
		// key's element on top, so the serialized stack runs in reverse
		// key order.
		stack := make([][]byte, len(n.Keys))
		found := 0
		for i, key := range n.Keys {
			item := falseMarker
			if sig, ok := k.Signatures[key]; ok && found < n.K {
				item = sig
				found++
			}
			stack[len(n.Keys)-1-i] = item
		}
		if found < n.K {
			return nil, &SatisfactionError{Reason: "not enough known signatures for multi_a()"}
		}
		return &wit{stack: stack}, nil

	case FragAndV, FragAndB:
		// The left child's script runs first and consumes the top of the
		// stack, so its witness items serialize after the right child's.
		x, err := satisfy(n.Children[0], exp, k)
		if err != nil {
			return nil, err
		}
		y, err := satisfy(n.Children[1], exp, k)
		if err != nil {
			return nil, err
		}
		return concatWit(y, x)

	case FragOrB:
		return satisfyOrB(n, exp, k)
	case FragOrC, FragOrD:
		return satisfyOrD(n, exp, k)
	case FragOrI:
		return satisfyOrI(n, exp, k)
	case FragAndOr:
		return satisfyAndOr(n, exp, k)
	case FragThresh:
		return satisfyThresh(n, exp, k)

	case WrapA, WrapS, WrapC, WrapV, WrapN:
		return satisfy(n.Children[0], exp, k)

	case WrapD:
		inner, err := satisfy(n.Children[0], exp, k)
		if err != nil {
			return nil, err
		}
		return appendWit(inner, trueMarker), nil

	case WrapJ:
		return satisfy(n.Children[0], exp, k)

	default:
		return nil, fmt.Errorf("miniscript: unhandled fragment %q during satisfy", n.Frag)
	}
}

// dissatisfy returns the canonical, always-cheap "prove false" witness for
// node, if one is known for its fragment kind. Not every fragment this
// package compiles has one (older/after/hash preimages do not) — ok is
// false when none exists.
func dissatisfy(n *Node, exp ExpansionMap, k Knowns) (*wit, bool) {
	switch n.Frag {
	case FragFalse:
		return &wit{}, true

	case FragPkK:
		return &wit{stack: [][]byte{falseMarker}}, true

	case FragPkH:
		ki, err := exp.lookup(n.Key)
		if err != nil {
			return nil, false
		}
		return &wit{stack: [][]byte{falseMarker, ki.PubKey}}, true

	case FragMulti, FragSortedMu:
		stack := make([][]byte, n.K+1)
		for i := range stack {
			stack[i] = falseMarker
		}
		return &wit{stack: stack}, true

	case FragMultiA, FragSortedMuA:
		stack := make([][]byte, len(n.Keys))
		for i := range stack {
			stack[i] = falseMarker
		}
		return &wit{stack: stack}, true

	case FragAndB, FragOrB, FragOrD, FragOrC:
		x, okx := dissatisfy(n.Children[0], exp, k)
		z, okz := dissatisfy(n.Children[1], exp, k)
		if !okx || !okz {
			return nil, false
		}
		w, err := concatWit(z, x)
		if err != nil {
			return nil, false
		}
		return w, true

	case FragOrI:
		// The branch marker is consumed first, so it serializes last; a
		// true marker routes into the left branch's dissatisfaction.
		if x, ok := dissatisfy(n.Children[0], exp, k); ok {
			return appendWit(x, trueMarker), true
		}
		if z, ok := dissatisfy(n.Children[1], exp, k); ok {
			return appendWit(z, falseMarker), true
		}
		return nil, false

	case FragThresh:
		result := &wit{}
		for i := len(n.Children) - 1; i >= 0; i-- {
			d, ok := dissatisfy(n.Children[i], exp, k)
			if !ok {
				return nil, false
			}
			w, err := concatWit(result, d)
			if err != nil {
				return nil, false
			}
			result = w
		}
		return result, true

	case WrapD:
		return &wit{stack: [][]byte{falseMarker}}, true

	case WrapS, WrapC, WrapN:
		return dissatisfy(n.Children[0], exp, k)

	case WrapJ:
		return &wit{stack: [][]byte{falseMarker}}, true

	default:
		return nil, false
	}
}

func satisfyOrB(n *Node, exp ExpansionMap, k Knowns) (*wit, error) {
	x, errX := satisfy(n.Children[0], exp, k)
	z, errZ := satisfy(n.Children[1], exp, k)

	var viaX, viaZ *wit
	if errX == nil {
		if zDis, ok := dissatisfy(n.Children[1], exp, k); ok {
			if w, err := concatWit(zDis, x); err == nil {
				viaX = w
			}
		}
	}
	if errZ == nil {
		if xDis, ok := dissatisfy(n.Children[0], exp, k); ok {
			if w, err := concatWit(z, xDis); err == nil {
				viaZ = w
			}
		}
	}
	return pickCheapest(viaX, viaZ, "or_b")
}

func satisfyOrD(n *Node, exp ExpansionMap, k Knowns) (*wit, error) {
	x, errX := satisfy(n.Children[0], exp, k)
	var viaX *wit
	if errX == nil {
		viaX = x
	}

	var viaZ *wit
	if xDis, ok := dissatisfy(n.Children[0], exp, k); ok {
		if z, err := satisfy(n.Children[1], exp, k); err == nil {
			if w, err := concatWit(z, xDis); err == nil {
				viaZ = w
			}
		}
	}
	return pickCheapest(viaX, viaZ, string(n.Frag))
}

func satisfyOrI(n *Node, exp ExpansionMap, k Knowns) (*wit, error) {
	var viaX, viaZ *wit
	if x, err := satisfy(n.Children[0], exp, k); err == nil {
		viaX = appendWit(x, trueMarker)
	}
	if z, err := satisfy(n.Children[1], exp, k); err == nil {
		viaZ = appendWit(z, falseMarker)
	}
	return pickCheapest(viaX, viaZ, "or_i")
}

func satisfyAndOr(n *Node, exp ExpansionMap, k Knowns) (*wit, error) {
	x, y, z := n.Children[0], n.Children[1], n.Children[2]

	var viaY *wit
	if xs, err := satisfy(x, exp, k); err == nil {
		if ys, err := satisfy(y, exp, k); err == nil {
			if w, err := concatWit(ys, xs); err == nil {
				viaY = w
			}
		}
	}

	var viaZ *wit
	if xd, ok := dissatisfy(x, exp, k); ok {
		if zs, err := satisfy(z, exp, k); err == nil {
			if w, err := concatWit(zs, xd); err == nil {
				viaZ = w
			}
		}
	}

	return pickCheapest(viaY, viaZ, "andor")
}

func satisfyThresh(n *Node, exp ExpansionMap, k Knowns) (*wit, error) {
	type candidate struct {
		sat, dis *wit
		hasSat   bool
		extra    int
	}
	cands := make([]candidate, len(n.Children))
	for i, c := range n.Children {
		dis, okDis := dissatisfy(c, exp, k)
		sat, errSat := satisfy(c, exp, k)
		cands[i] = candidate{sat: sat, dis: dis, hasSat: errSat == nil}
		if okDis && errSat == nil {
			cands[i].extra = sat.cost() - dis.cost()
		} else if errSat == nil {
			cands[i].extra = sat.cost()
		} else {
			cands[i].extra = 1 << 30
		}
		if !okDis {
			cands[i].dis = nil
		}
	}

	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if cands[order[j]].extra < cands[order[i]].extra {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	chosen := make(map[int]bool)
	count := 0
	for _, idx := range order {
		if count == n.K {
			break
		}
		if !cands[idx].hasSat {
			continue
		}
		chosen[idx] = true
		count++
	}
	if count < n.K {
		return nil, &SatisfactionError{Reason: "not enough satisfiable children for thresh()"}
	}

	// The first child's script runs first, so its witness items serialize
	// last.
	result := &wit{}
	var err error
	for i := len(cands) - 1; i >= 0; i-- {
		var part *wit
		if chosen[i] {
			part = cands[i].sat
		} else {
			if cands[i].dis == nil {
				return nil, &SatisfactionError{Reason: "an unchosen thresh() child has no dissatisfaction"}
			}
			part = cands[i].dis
		}
		result, err = concatWit(result, part)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func pickCheapest(a, b *wit, frag string) (*wit, error) {
	switch {
	case a == nil && b == nil:
		return nil, &SatisfactionError{Reason: fmt.Sprintf("%s is not satisfiable with the known material", frag)}
	case a == nil:
		return b, nil
	case b == nil:
		return a, nil
	case a.cost() <= b.cost():
		return a, nil
	default:
		return b, nil
	}
}
