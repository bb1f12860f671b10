package miniscript

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize renders a Node tree back to miniscript syntax. Wrapper nodes
// are rendered as the single-letter-prefix form ("v:pk(@0)"), never the
// fully bracketed alternative, matching how a human (or this package's own
// ParseNode) would write it.
func Serialize(n *Node) string {
	if n == nil {
		return ""
	}

	switch n.Frag {
	case FragTrue:
		return "1"
	case FragFalse:
		return "0"

	case FragPkK:
		return fmt.Sprintf("pk_k(%s)", n.Key)
	case FragPkH:
		return fmt.Sprintf("pk_h(%s)", n.Key)
	case FragOlder:
		return fmt.Sprintf("older(%d)", n.Value)
	case FragAfter:
		return fmt.Sprintf("after(%d)", n.Value)
	case FragSha256, FragHash256, FragRipemd160, FragHash160:
		return fmt.Sprintf("%s(%s)", n.Frag, n.Digest)

	case FragAndV, FragAndB, FragOrB, FragOrC, FragOrD, FragOrI:
		return fmt.Sprintf("%s(%s,%s)", n.Frag,
			Serialize(n.Children[0]), Serialize(n.Children[1]))

	case FragAndOr:
		return fmt.Sprintf("andor(%s,%s,%s)",
			Serialize(n.Children[0]), Serialize(n.Children[1]), Serialize(n.Children[2]))

	case FragThresh:
		parts := make([]string, len(n.Children))
		for i, c := range n.Children {
			parts[i] = Serialize(c)
		}
		return fmt.Sprintf("thresh(%d,%s)", n.K, strings.Join(parts, ","))

	case FragMulti, FragMultiA, FragSortedMu, FragSortedMuA:
		return fmt.Sprintf("%s(%s,%s)", n.Frag, strconv.Itoa(n.K), strings.Join(n.Keys, ","))

	case WrapC:
		// pk(K) and pkh(K) parse to c:pk_k(K) and c:pk_h(K); render them
		// back in their short form.
		switch n.Children[0].Frag {
		case FragPkK:
			return fmt.Sprintf("pk(%s)", n.Children[0].Key)
		case FragPkH:
			return fmt.Sprintf("pkh(%s)", n.Children[0].Key)
		}
		return fmt.Sprintf("c:%s", Serialize(n.Children[0]))

	case WrapA, WrapS, WrapD, WrapV, WrapJ, WrapN:
		return fmt.Sprintf("%s:%s", n.Frag, Serialize(n.Children[0]))

	default:
		return fmt.Sprintf("<?%s?>", n.Frag)
	}
}
