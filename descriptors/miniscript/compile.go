package miniscript

import "fmt"

// token is one element of the symbolic ASM produced by compileNode: either
// a bare opcode name ("OP_DUP") or a data push, encoded with a "KIND:"
// prefix so assemble.go can resolve it against an ExpansionMap without
// re-parsing the miniscript text.
type token string

func opToken(name string) token { return token(name) }

func keyToken(placeholder string) token {
	return token("KEY:" + placeholder)
}

func hash160KeyToken(placeholder string) token {
	return token("HASH160KEY:" + placeholder)
}

func digestToken(hexDigest string) token {
	return token("DIGEST:" + hexDigest)
}

func intToken(n int64) token {
	return token(fmt.Sprintf("INT:%d", n))
}

// compileNode produces the fixed Script encoding for an already-expanded
// (Key/Keys holding "@i" placeholders) miniscript node.
func compileNode(n *Node) ([]token, error) {
	if n == nil {
		return nil, fmt.Errorf("miniscript: nil node")
	}

	switch n.Frag {
	case FragTrue:
		return []token{opToken("OP_1")}, nil
	case FragFalse:
		return []token{opToken("OP_0")}, nil

	case FragPkK:
		return []token{keyToken(n.Key)}, nil

	case FragPkH:
		return []token{
			opToken("OP_DUP"), opToken("OP_HASH160"),
			hash160KeyToken(n.Key), opToken("OP_EQUALVERIFY"),
		}, nil

	case FragOlder:
		return []token{intToken(int64(n.Value)), opToken("OP_CHECKSEQUENCEVERIFY")}, nil

	case FragAfter:
		return []token{intToken(int64(n.Value)), opToken("OP_CHECKLOCKTIMEVERIFY")}, nil

	case FragSha256, FragHash256, FragRipemd160, FragHash160:
		var hashOp string
		switch n.Frag {
		case FragSha256:
			hashOp = "OP_SHA256"
		case FragHash256:
			hashOp = "OP_HASH256"
		case FragRipemd160:
			hashOp = "OP_RIPEMD160"
		case FragHash160:
			hashOp = "OP_HASH160"
		}
		return []token{
			opToken("OP_SIZE"), intToken(32), opToken("OP_EQUALVERIFY"),
			opToken(hashOp), digestToken(n.Digest), opToken("OP_EQUAL"),
		}, nil

	case FragMulti, FragSortedMu:
		toks := []token{intToken(int64(n.K))}
		for _, k := range n.Keys {
			toks = append(toks, keyToken(k))
		}
		toks = append(toks, intToken(int64(len(n.Keys))), opToken("OP_CHECKMULTISIG"))
		return toks, nil

	case FragMultiA, FragSortedMuA:
		var toks []token
		for i, k := range n.Keys {
			toks = append(toks, keyToken(k))
			if i == 0 {
				toks = append(toks, opToken("OP_CHECKSIG"))
			} else {
				toks = append(toks, opToken("OP_CHECKSIGADD"))
			}
		}
		toks = append(toks, intToken(int64(n.K)), opToken("OP_NUMEQUAL"))
		return toks, nil

	case FragAndV:
		return concatChildren(n)
	case FragAndB:
		return appendOp(n, "OP_BOOLAND")
	case FragOrB:
		return appendOp(n, "OP_BOOLOR")

	case FragOrC:
		x, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		z, err := compileNode(n.Children[1])
		if err != nil {
			return nil, err
		}
		out := append(append([]token{}, x...), opToken("OP_NOTIF"))
		out = append(out, z...)
		return append(out, opToken("OP_ENDIF")), nil

	case FragOrD:
		x, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		z, err := compileNode(n.Children[1])
		if err != nil {
			return nil, err
		}
		out := append(append([]token{}, x...), opToken("OP_IFDUP"), opToken("OP_NOTIF"))
		out = append(out, z...)
		return append(out, opToken("OP_ENDIF")), nil

	case FragOrI:
		x, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		z, err := compileNode(n.Children[1])
		if err != nil {
			return nil, err
		}
		out := append([]token{opToken("OP_IF")}, x...)
		out = append(out, opToken("OP_ELSE"))
		out = append(out, z...)
		return append(out, opToken("OP_ENDIF")), nil

	case FragAndOr:
		x, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		y, err := compileNode(n.Children[1])
		if err != nil {
			return nil, err
		}
		z, err := compileNode(n.Children[2])
		if err != nil {
			return nil, err
		}
		out := append(append([]token{}, x...), opToken("OP_NOTIF"))
		out = append(out, z...)
		out = append(out, opToken("OP_ELSE"))
		out = append(out, y...)
		return append(out, opToken("OP_ENDIF")), nil

	case FragThresh:
		if len(n.Children) == 0 {
			return nil, &MiniscriptSanityError{Reason: "thresh() requires at least one child"}
		}
		if n.K < 1 || n.K > len(n.Children) {
			return nil, &MiniscriptSanityError{
				Reason: fmt.Sprintf("thresh() count %d out of range for %d children", n.K, len(n.Children)),
			}
		}
		out, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		for _, c := range n.Children[1:] {
			ct, err := compileNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, ct...)
			out = append(out, opToken("OP_ADD"))
		}
		return append(out, intToken(int64(n.K)), opToken("OP_EQUAL")), nil

	case WrapA:
		inner, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		out := append([]token{opToken("OP_TOALTSTACK")}, inner...)
		return append(out, opToken("OP_FROMALTSTACK")), nil

	case WrapS:
		inner, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		return append([]token{opToken("OP_SWAP")}, inner...), nil

	case WrapC:
		inner, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		return append(inner, opToken("OP_CHECKSIG")), nil

	case WrapD:
		inner, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		out := append([]token{opToken("OP_DUP"), opToken("OP_IF")}, inner...)
		return append(out, opToken("OP_ENDIF")), nil

	case WrapV:
		inner, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		return append(inner, opToken("OP_VERIFY")), nil

	case WrapJ:
		inner, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		out := append([]token{opToken("OP_SIZE"), opToken("OP_0NOTEQUAL"), opToken("OP_IF")}, inner...)
		return append(out, opToken("OP_ENDIF")), nil

	case WrapN:
		inner, err := compileNode(n.Children[0])
		if err != nil {
			return nil, err
		}
		return append(inner, opToken("OP_0NOTEQUAL")), nil

	default:
		return nil, fmt.Errorf("miniscript: unhandled fragment %q during compile", n.Frag)
	}
}

func concatChildren(n *Node) ([]token, error) {
	var out []token
	for _, c := range n.Children {
		ct, err := compileNode(c)
		if err != nil {
			return nil, err
		}
		out = append(out, ct...)
	}
	return out, nil
}

func appendOp(n *Node, op string) ([]token, error) {
	out, err := concatChildren(n)
	if err != nil {
		return nil, err
	}
	return append(out, opToken(op)), nil
}
