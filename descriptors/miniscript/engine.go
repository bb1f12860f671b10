package miniscript

import (
	"bytes"
	"crypto/sha256"
)

// Engine is the collaborator interface spec.md's Design Note "External
// miniscript compiler/satisfier" describes: a component that turns an
// already key-expanded miniscript string into Script, and that builds a
// witness for it given known signatures/preimages. DefaultEngine is the
// only implementation this package ships, but callers that want to plug a
// real external compiler in its place only need to satisfy this interface.
type Engine interface {
	// Compile returns the Script encoding and a sanity flag for an
	// already-expanded miniscript (Key/Keys fields holding "@i"
	// placeholders). sane is false if the expression is structurally
	// unsound (e.g. a duplicate multisig key).
	Compile(node *Node, expansion ExpansionMap) (script []byte, sane bool, err error)

	// Satisfy builds the cheapest non-malleable witness for node given
	// the signatures/preimages in knowns.
	Satisfy(node *Node, expansion ExpansionMap, knowns Knowns) (*Satisfaction, error)
}

// DefaultEngine is the built-in Engine implementation: a fixed per-
// fragment Script/witness table, no policy search.
type DefaultEngine struct {
	// MaxNonPushOps bounds the number of non-push opcodes Compile will
	// accept before returning a ScriptPolicyError; 0 disables the check.
	MaxNonPushOps int
}

func (e DefaultEngine) Compile(node *Node, expansion ExpansionMap) ([]byte, bool, error) {
	toks, err := compileNode(node)
	if err != nil {
		return nil, false, err
	}
	script, err := Assemble(toks, expansion)
	if err != nil {
		return nil, false, err
	}

	limit := e.MaxNonPushOps
	if limit == 0 {
		limit = 201
	}
	if n := countNonPushOps(toks); n > limit {
		return nil, false, &ScriptPolicyError{
			Reason: "non-push opcode budget exceeded", Limit: limit, Actual: n,
		}
	}

	return script, true, nil
}

func (e DefaultEngine) Satisfy(node *Node, expansion ExpansionMap, knowns Knowns) (*Satisfaction, error) {
	return Satisfy(node, expansion, knowns)
}

func countNonPushOps(toks []token) int {
	n := 0
	for _, t := range toks {
		s := string(t)
		if len(s) >= 4 && s[:4] == "KEY:" {
			continue
		}
		if len(s) >= 11 && s[:11] == "HASH160KEY:" {
			continue
		}
		if len(s) >= 7 && s[:7] == "DIGEST:" {
			continue
		}
		if len(s) >= 4 && s[:4] == "INT:" {
			continue
		}
		if s == "OP_0" || s == "OP_1" {
			continue
		}
		n++
	}
	return n
}

// DiscoverTimeConstraints runs Satisfy with 72-byte all-zero signatures
// and a fixed synthetic preimage standing in for every key/digest the expression
// references, so the nLockTime/nSequence floor a real satisfaction would
// need can be read off without possessing any actual signature yet. This
// is the "fake signature" trick PSBT updaters use to pick sane default
// locktime/sequence fields before finalization.
func DiscoverTimeConstraints(node *Node, expansion ExpansionMap) (lockTime, sequence *uint32, err error) {
	knowns := Knowns{
		Signatures: map[string][]byte{},
		Preimages:  map[string][]byte{},
	}
	fakeSig := bytes.Repeat([]byte{0x00}, 72)
	fakePreimage := sha256.Sum256([]byte("miniscript-fake-preimage"))

	node.Walk(func(n *Node) {
		switch n.Frag {
		case FragPkK, FragPkH:
			knowns.Signatures[n.Key] = fakeSig
		case FragMulti, FragMultiA, FragSortedMu, FragSortedMuA:
			for _, key := range n.Keys {
				knowns.Signatures[key] = fakeSig
			}
		case FragSha256, FragHash256, FragRipemd160, FragHash160:
			knowns.Preimages[n.Digest] = fakePreimage[:]
		}
	})

	sat, err := Satisfy(node, expansion, knowns)
	if err != nil {
		return nil, nil, err
	}
	return sat.LockTime, sat.Sequence, nil
}
