package miniscript

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"golang.org/x/crypto/ripemd160"

	"github.com/lightninglabs/chantools/descriptors/asm"
	"github.com/lightninglabs/chantools/descriptors/keyexpr"
)

// Assemble turns the symbolic token stream compileNode produced into a
// final Script, substituting each KEY:/HASH160KEY:/DIGEST:/INT: token
// against the ExpansionMap that resolved its placeholder.
func Assemble(toks []token, expansion ExpansionMap) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	for _, t := range toks {
		s := string(t)
		switch {
		case strings.HasPrefix(s, "KEY:"):
			ki, err := expansion.lookup(strings.TrimPrefix(s, "KEY:"))
			if err != nil {
				return nil, err
			}
			builder.AddData(ki.PubKey)

		case strings.HasPrefix(s, "HASH160KEY:"):
			ki, err := expansion.lookup(strings.TrimPrefix(s, "HASH160KEY:"))
			if err != nil {
				return nil, err
			}
			builder.AddData(hash160(ki.PubKey))

		case strings.HasPrefix(s, "DIGEST:"):
			raw, err := hex.DecodeString(strings.TrimPrefix(s, "DIGEST:"))
			if err != nil {
				return nil, fmt.Errorf("miniscript: invalid digest literal: %w", err)
			}
			builder.AddData(raw)

		case strings.HasPrefix(s, "INT:"):
			// DecodeNumber enforces the safe-integer range before the
			// builder picks the minimal push encoding.
			n, err := asm.DecodeNumber(strings.TrimPrefix(s, "INT:"))
			if err != nil {
				return nil, err
			}
			builder.AddInt64(n)

		default:
			op, ok := txscript.OpcodeByName[s]
			if !ok {
				return nil, fmt.Errorf("miniscript: unknown opcode %q", s)
			}
			builder.AddOp(op)
		}
	}

	return builder.Script()
}

func hash160(data []byte) []byte {
	r := ripemd160.New()
	sha := shaSum256(data)
	r.Write(sha[:])
	return r.Sum(nil)
}

// ExpansionMap maps an "@i" placeholder to the KeyInfo it was resolved to
// during expansion.
type ExpansionMap map[string]*keyexpr.KeyInfo

func (m ExpansionMap) lookup(placeholder string) (*keyexpr.KeyInfo, error) {
	ki, ok := m[placeholder]
	if !ok {
		return nil, fmt.Errorf("miniscript: no expansion for placeholder %q", placeholder)
	}
	return ki, nil
}
