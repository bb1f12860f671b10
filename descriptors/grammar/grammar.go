// Package grammar holds the canonical regular-expression fragments used to
// recognize descriptor key expressions, paths, origins and script wrapper
// forms, kept in one place per the "Regex-based parsing" design note: the
// character alphabets and fragment definitions live in a single module so a
// recursive-descent parser built on top of them (see the keyexpr and
// top-level descriptors packages) has one source of truth for what counts
// as a valid token.
package grammar

import "regexp"

const (
	// Hardener matches the hardened-child marker used after a path level.
	Hardener = `['hH]`

	// Level matches a single BIP32 path level, with optional hardener.
	Level = `\d+` + Hardener + `?`

	// HexFingerprint matches an 8-hex-digit master key fingerprint.
	HexFingerprint = `[0-9a-fA-F]{8}`

	// Origin matches a "[fingerprint/path...]" key-origin prefix.
	Origin = `\[` + HexFingerprint + `(/` + Level + `)*\]`

	// CompressedPubKey matches a 33-byte compressed public key (hex).
	CompressedPubKey = `(02|03)[0-9a-fA-F]{64}`

	// UncompressedPubKey matches a 65-byte uncompressed public key (hex).
	UncompressedPubKey = `04[0-9a-fA-F]{128}`

	// XOnlyPubKey matches a 32-byte x-only public key (hex).
	XOnlyPubKey = `[0-9a-fA-F]{64}`

	// WIF matches a base58check Wallet Import Format private key.
	WIF = `[5KLc9][1-9A-HJ-NP-Za-km-z]{50,51}`

	// ExtendedPubKey matches an xpub/tpub-family extended public key.
	ExtendedPubKey = `[xt]pub[1-9A-HJ-NP-Za-km-z]{100,108}`

	// ExtendedPrivKey matches an xprv/tprv-family extended private key.
	ExtendedPrivKey = `[xt]prv[1-9A-HJ-NP-Za-km-z]{100,108}`

	// TupleElement is one decimal value inside a multipath "<a;b;...>".
	TupleElement = `\d+`

	// Tuple matches a multipath "<a;b;...>" path component.
	Tuple = `<` + TupleElement + `(;` + TupleElement + `)+>`

	// DerivationPath matches one or more "/level", "/<tuple>", "/*" or
	// "/**" path components.
	DerivationPath = `(/(` + Level + `|` + Tuple + `|\*\*?))+`

	// Checksum matches a trailing "#CHECKSUM" suffix.
	Checksum = `#[` + `qpzry9x8gf2tvdw0s3jn54khce6mua7l` + `]{8}`
)

// KeyExpression builds the regex fragment that recognizes one key
// expression for the given script context. Non-segwit contexts accept all
// pubkey forms plus WIF and extended keys; segwit requires compressed
// form; taproot requires x-only form (64 hex chars, parsed without a sign
// byte) in addition to the other forms for uniform handling during
// resolution.
func KeyExpression(isSegwit, isTaproot bool) string {
	origin := `(` + Origin + `)?`

	var pubkeyAlt string
	switch {
	case isTaproot:
		pubkeyAlt = `(` + XOnlyPubKey + `|` + CompressedPubKey + `)`
	case isSegwit:
		pubkeyAlt = CompressedPubKey
	default:
		pubkeyAlt = `(` + CompressedPubKey + `|` + UncompressedPubKey + `)`
	}

	key := `(` + pubkeyAlt + `|` + WIF + `|` +
		ExtendedPubKey + `|` + ExtendedPrivKey + `)`

	path := `(` + DerivationPath + `)?`

	return `^` + origin + key + path + `$`
}

var (
	reOrigin       = regexp.MustCompile(`^\[(` + HexFingerprint + `)((/` + Level + `)*)\]`)
	reLevel        = regexp.MustCompile(Level)
	reTuple        = regexp.MustCompile(`^<(\d+(;\d+)+)>$`)
	rePathElem     = regexp.MustCompile(`^(\d+)(['hH])?$`)
	reWildcardPath = regexp.MustCompile(`\*\*?$`)
)

// OriginRegexp returns the compiled regexp used to peel a leading
// "[fingerprint/path]" origin off a key expression.
func OriginRegexp() *regexp.Regexp { return reOrigin }

// LevelRegexp returns the compiled regexp for a single path level.
func LevelRegexp() *regexp.Regexp { return reLevel }

// TupleRegexp returns the compiled regexp for a multipath "<a;b;...>"
// component.
func TupleRegexp() *regexp.Regexp { return reTuple }

// PathElementRegexp returns the compiled regexp for a single numeric path
// element with optional hardened marker.
func PathElementRegexp() *regexp.Regexp { return rePathElem }

// WildcardSuffixRegexp matches a trailing "*" or "**" range marker.
func WildcardSuffixRegexp() *regexp.Regexp { return reWildcardPath }
