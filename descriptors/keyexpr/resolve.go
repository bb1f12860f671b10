package keyexpr

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Resolve substitutes any wildcard/multipath placeholders in the key path
// and derives the final public key (and, where available, the private
// scalar).
//
// index substitutes every "*" wildcard in lockstep (required if the key
// expression IsRanged). change must be one of the values present in every
// multipath tuple (required if the key expression IsMultipath); the tuple
// resolves to that value at every occurrence, per spec.md §4.8.
func (k *KeyExpr) Resolve(index, change *uint32) (*KeyInfo, error) {
	if k.IsRanged() && index == nil {
		return nil, &RangeError{Reason: "wildcard (\"*\") key expression requires an index"}
	}
	if k.IsMultipath() && change == nil {
		return nil, &RangeError{Reason: "multipath key expression requires a change value"}
	}

	switch {
	case k.RawPubKey != nil:
		return k.resolveRaw()
	case k.PrivKey != nil:
		return k.resolveWIF()
	case k.ExtendedKey != nil:
		return k.resolveExtended(index, change)
	default:
		return nil, &Error{
			Expression: k.Expression,
			Reason:     "internal: no key material was parsed",
		}
	}
}

func (k *KeyExpr) resolveRaw() (*KeyInfo, error) {
	pub := k.RawPubKey
	if k.IsTaproot {
		xonly, err := toXOnly(pub)
		if err != nil {
			return nil, &Error{Expression: k.Expression, Reason: "invalid taproot key", Cause: err}
		}
		pub = xonly
	}
	return &KeyInfo{
		Expression: k.Expression,
		PubKey:     pub,
		IsSegwit:   k.IsSegwit,
		IsTaproot:  k.IsTaproot,
	}, nil
}

func (k *KeyExpr) resolveWIF() (*KeyInfo, error) {
	pubKey := k.PrivKey.PubKey()
	var pub []byte
	if k.WIFCompressed {
		pub = pubKey.SerializeCompressed()
	} else {
		pub = pubKey.SerializeUncompressed()
	}
	if k.IsTaproot {
		xonly, err := toXOnly(pubKey.SerializeCompressed())
		if err != nil {
			return nil, &Error{Expression: k.Expression, Reason: "invalid taproot key", Cause: err}
		}
		pub = xonly
	}
	return &KeyInfo{
		Expression: k.Expression,
		PubKey:     pub,
		PrivKey:    k.PrivKey,
		IsSegwit:   k.IsSegwit,
		IsTaproot:  k.IsTaproot,
	}, nil
}

func (k *KeyExpr) resolveExtended(index, change *uint32) (*KeyInfo, error) {
	resolved := make([]uint32, 0, len(k.KeyPath))
	for _, elem := range k.KeyPath {
		switch elem.Kind {
		case Fixed:
			resolved = append(resolved, elem.Value)
		case Wildcard:
			resolved = append(resolved, *index)
		case MultipathTuple:
			found := false
			for _, v := range elem.Values {
				if v == *change {
					found = true
					break
				}
			}
			if !found {
				return nil, &RangeError{Reason: fmt.Sprintf(
					"change value %d does not appear in multipath tuple", *change,
				)}
			}
			resolved = append(resolved, *change)
		}
	}

	current := k.ExtendedKey
	var err error
	for _, idx := range resolved {
		current, err = current.DeriveNonStandard(idx)
		if err != nil {
			return nil, &Error{
				Expression: k.Expression,
				Reason:     "child derivation failed",
				Cause:      err,
			}
		}
	}

	pubKey, err := current.ECPubKey()
	if err != nil {
		return nil, &Error{Expression: k.Expression, Reason: "could not derive public key", Cause: err}
	}

	var pub []byte
	if k.IsTaproot {
		pub, err = toXOnly(pubKey.SerializeCompressed())
		if err != nil {
			return nil, &Error{Expression: k.Expression, Reason: "invalid taproot key", Cause: err}
		}
	} else {
		pub = pubKey.SerializeCompressed()
	}

	ki := &KeyInfo{
		Expression:        k.Expression,
		PubKey:            pub,
		ExtendedKey:       current,
		MasterFingerprint: k.MasterFingerprint,
		OriginPath:        k.OriginPath,
		KeyPath:           resolved,
		FullPath:          formatPath(resolved),
		IsSegwit:          k.IsSegwit,
		IsTaproot:         k.IsTaproot,
	}

	if current.IsPrivate() {
		priv, err := current.ECPrivKey()
		if err == nil {
			ki.PrivKey = priv
		}
	}

	return ki, nil
}

func toXOnly(compressed []byte) ([]byte, error) {
	if len(compressed) != 33 {
		pk, err := btcec.ParsePubKey(compressed)
		if err != nil {
			return nil, err
		}
		compressed = pk.SerializeCompressed()
	}
	return compressed[1:], nil
}

func formatPath(path []uint32) string {
	out := "m"
	for _, v := range path {
		if v >= HardenedKeyStart {
			out += fmt.Sprintf("/%d'", v-HardenedKeyStart)
		} else {
			out += fmt.Sprintf("/%d", v)
		}
	}
	return out
}
