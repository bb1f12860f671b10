package keyexpr

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightninglabs/chantools/descriptors/grammar"
)

// Options configures Parse for the script family the key expression is
// being destructured for.
type Options struct {
	IsSegwit  bool
	IsTaproot bool
	Network   *chaincfg.Params
}

var (
	reCompressed   = regexp.MustCompile(`^(02|03)[0-9a-fA-F]{64}$`)
	reUncompressed = regexp.MustCompile(`^04[0-9a-fA-F]{128}$`)
	reXOnly        = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	reWIF          = regexp.MustCompile(`^` + grammar.WIF + `$`)
	reXpub         = regexp.MustCompile(`^` + grammar.ExtendedPubKey + `$`)
	reXprv         = regexp.MustCompile(`^` + grammar.ExtendedPrivKey + `$`)

	// Whole-expression recognizers, one per script context: the permitted
	// pubkey forms differ between legacy, segwit and taproot.
	reKeyExprLegacy  = regexp.MustCompile(grammar.KeyExpression(false, false))
	reKeyExprSegwit  = regexp.MustCompile(grammar.KeyExpression(true, false))
	reKeyExprTaproot = regexp.MustCompile(grammar.KeyExpression(true, true))
)

func keyExprRegexp(opts Options) *regexp.Regexp {
	switch {
	case opts.IsTaproot:
		return reKeyExprTaproot
	case opts.IsSegwit:
		return reKeyExprSegwit
	default:
		return reKeyExprLegacy
	}
}

// Parse destructures a single key expression into a KeyExpr. Any
// wildcard/multipath path elements are left unresolved; call Resolve to
// obtain a concrete KeyInfo.
func Parse(expr string, opts Options) (*KeyExpr, error) {
	k := &KeyExpr{
		Expression: expr,
		IsSegwit:   opts.IsSegwit,
		IsTaproot:  opts.IsTaproot,
		Network:    opts.Network,
	}
	if k.Network == nil {
		k.Network = &chaincfg.MainNetParams
	}

	if !keyExprRegexp(opts).MatchString(expr) {
		return nil, &Error{
			Expression: expr,
			Reason:     "expression does not match any permitted key form for this script context",
		}
	}

	remainder := expr

	// 1. Peel a leading "[fingerprint/origin-path]", if present.
	if m := grammar.OriginRegexp().FindStringSubmatchIndex(remainder); m != nil {
		fpHex := remainder[m[2]:m[3]]
		fp, err := hex.DecodeString(fpHex)
		if err != nil || len(fp) != 4 {
			return nil, &Error{
				Expression: expr,
				Reason:     "origin fingerprint must be 8 hex digits",
				Cause:      err,
			}
		}
		k.MasterFingerprint = fp

		originPathStr := remainder[m[4]:m[5]]
		originPath, err := parseFixedPath(originPathStr)
		if err != nil {
			return nil, &Error{
				Expression: expr,
				Reason:     "invalid origin path",
				Cause:      err,
			}
		}
		k.OriginPath = originPath

		remainder = remainder[m[1]:]
	}

	// 2. Split the remaining "KEY" + optional "/path" into the key
	// material and the derivation path suffix.
	keyStr, pathStr, err := splitKeyAndPath(remainder)
	if err != nil {
		return nil, &Error{Expression: expr, Reason: "malformed key expression", Cause: err}
	}

	// 3. Dispatch on the key material's shape.
	switch {
	case reCompressed.MatchString(keyStr), reUncompressed.MatchString(keyStr):
		if opts.IsSegwit && !reCompressed.MatchString(keyStr) {
			return nil, &Error{
				Expression: expr,
				Reason:     "segwit scripts require a compressed public key",
			}
		}
		raw, err := hex.DecodeString(keyStr)
		if err != nil {
			return nil, &Error{Expression: expr, Reason: "invalid pubkey hex", Cause: err}
		}
		if _, err := btcec.ParsePubKey(raw); err != nil {
			return nil, &Error{Expression: expr, Reason: "not a valid curve point", Cause: err}
		}
		if pathStr != "" {
			return nil, &Error{
				Expression: expr,
				Reason:     "a raw public key cannot have a derivation path",
			}
		}
		k.RawPubKey = raw

	case opts.IsTaproot && reXOnly.MatchString(keyStr) && !reCompressed.MatchString(keyStr) && !reUncompressed.MatchString(keyStr):
		raw, err := hex.DecodeString(keyStr)
		if err != nil {
			return nil, &Error{Expression: expr, Reason: "invalid x-only pubkey hex", Cause: err}
		}
		xonly, err := schnorr.ParsePubKey(raw)
		if err != nil {
			return nil, &Error{Expression: expr, Reason: "not a valid x-only point", Cause: err}
		}
		// Promote to even-parity 33-byte form for uniform internal
		// handling; exposed back out as x-only via KeyInfo.XOnly().
		k.RawPubKey = xonly.SerializeCompressed()
		if pathStr != "" {
			return nil, &Error{
				Expression: expr,
				Reason:     "a raw public key cannot have a derivation path",
			}
		}

	case reWIF.MatchString(keyStr):
		wif, err := btcutil.DecodeWIF(keyStr)
		if err != nil {
			return nil, &Error{Expression: expr, Reason: "bad WIF checksum or format", Cause: err}
		}
		k.PrivKey = wif.PrivKey
		k.WIFCompressed = wif.CompressPubKey
		if opts.IsSegwit && !wif.CompressPubKey {
			return nil, &Error{
				Expression: expr,
				Reason:     "segwit scripts require a compressed public key",
			}
		}
		if pathStr != "" {
			return nil, &Error{
				Expression: expr,
				Reason:     "a WIF key cannot have a derivation path",
			}
		}

	case reXpub.MatchString(keyStr), reXprv.MatchString(keyStr):
		extKey, err := hdkeychain.NewKeyFromString(keyStr)
		if err != nil {
			return nil, &Error{Expression: expr, Reason: "unparseable extended key", Cause: err}
		}
		k.ExtendedKey = extKey

		path, err := parseKeyPath(pathStr)
		if err != nil {
			return nil, &Error{Expression: expr, Reason: "invalid derivation path", Cause: err}
		}
		k.KeyPath = path

	default:
		return nil, &Error{
			Expression: expr,
			Reason:     "unrecognized key expression form",
		}
	}

	return k, nil
}

// splitKeyAndPath separates the key-material prefix from a trailing
// "/path..." suffix. It does not itself validate the key; that is the
// caller's job once the shape is known.
func splitKeyAndPath(s string) (key string, path string, err error) {
	idx := strings.IndexByte(s, '/')
	if idx < 0 {
		return s, "", nil
	}
	return s[:idx], s[idx:], nil
}

// parseFixedPath parses a "/1/2'/3h" style path with no wildcards or
// tuples, as used for an origin path.
func parseFixedPath(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	out := make([]uint32, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		v, err := parseLevel(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parseLevel parses a single "123" or "123'"/"123h"/"123H" path level,
// rejecting hardened children that would overflow past 2^31 unhardened
// index space.
func parseLevel(s string) (uint32, error) {
	m := grammar.PathElementRegexp().FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid path level %q", s)
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("path level %q is not a valid integer: %w", s, err)
	}
	if n >= uint64(HardenedKeyStart) {
		return 0, fmt.Errorf("path level %q overflows unhardened index space (>= 2^31)", s)
	}
	if m[2] != "" {
		return uint32(n) + HardenedKeyStart, nil
	}
	return uint32(n), nil
}

// parseKeyPath parses a full descriptor derivation path, which may contain
// wildcards ("*", "**") and multipath tuples ("<a;b;...>").
func parseKeyPath(s string) ([]PathElement, error) {
	if s == "" {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "/")
	parts := strings.Split(s, "/")

	out := make([]PathElement, 0, len(parts))
	for _, part := range parts {
		switch {
		case part == "*":
			out = append(out, PathElement{Kind: Wildcard})

		case part == "**":
			// Shorthand for "<0;1>/*".
			out = append(out, PathElement{
				Kind:   MultipathTuple,
				Values: []uint32{0, 1},
			})
			out = append(out, PathElement{Kind: Wildcard})

		case grammar.TupleRegexp().MatchString(part):
			inner := part[1 : len(part)-1]
			values, err := parseTupleValues(inner)
			if err != nil {
				return nil, err
			}
			out = append(out, PathElement{Kind: MultipathTuple, Values: values})

		default:
			v, err := parseLevel(part)
			if err != nil {
				return nil, err
			}
			out = append(out, PathElement{Kind: Fixed, Value: v})
		}
	}
	return out, nil
}

func parseTupleValues(inner string) ([]uint32, error) {
	rawParts := strings.Split(inner, ";")
	values := make([]uint32, 0, len(rawParts))
	for _, rp := range rawParts {
		n, err := strconv.ParseUint(rp, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid multipath tuple value %q: %w", rp, err)
		}
		values = append(values, uint32(n))
	}
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return nil, &RangeError{
				Reason: "multipath tuple values must be strictly increasing",
			}
		}
	}
	return values, nil
}
