// Package checksum computes and verifies the 8-character descriptor
// checksum defined by Bitcoin Core, the same BCH-style polynomial chantools
// already carries for its own descriptor helpers.
package checksum

import (
	"fmt"
	"strings"
)

// Error is returned for any malformed or mismatched descriptor checksum.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("descriptor checksum error: %s", e.Reason)
}

var (
	inputCharset = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ" +
		"&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "

	// OutputCharset is the bech32 alphabet the 8-character checksum is
	// drawn from.
	OutputCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

	generator = []uint64{
		0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a,
		0x644d626ffd,
	}
)

func polymod(symbols []uint64) uint64 {
	chk := uint64(1)
	for _, value := range symbols {
		top := chk >> 35
		chk = (chk&0x7ffffffff)<<5 ^ value
		for i := 0; i < 5; i++ {
			if (top>>i)&1 != 0 {
				chk ^= generator[i]
			}
		}
	}
	return chk
}

func expand(s string) ([]uint64, error) {
	groups := []uint64{}
	symbols := []uint64{}
	for _, c := range s {
		v := strings.IndexRune(inputCharset, c)
		if v < 0 {
			return nil, &Error{Reason: fmt.Sprintf(
				"invalid character %q in descriptor", c,
			)}
		}
		symbols = append(symbols, uint64(v&31))
		groups = append(groups, uint64(v>>5))
		if len(groups) == 3 {
			symbols = append(
				symbols, groups[0]*9+groups[1]*3+groups[2],
			)
			groups = groups[:0]
		}
	}
	switch len(groups) {
	case 1:
		symbols = append(symbols, groups[0])
	case 2:
		symbols = append(symbols, groups[0]*3+groups[1])
	}
	return symbols, nil
}

// Create computes and appends the checksum to a descriptor body that does
// not yet carry one (no "#" suffix).
func Create(descriptor string) (string, error) {
	symbols, err := expand(descriptor)
	if err != nil {
		return "", err
	}
	symbols = append(symbols, 0, 0, 0, 0, 0, 0, 0, 0)
	chk := polymod(symbols) ^ 1

	builder := strings.Builder{}
	for i := 0; i < 8; i++ {
		builder.WriteByte(OutputCharset[(chk>>(5*(7-i)))&31])
	}
	return descriptor + "#" + builder.String(), nil
}

// Verify checks a descriptor's trailing "#CHECKSUM", if any. If require is
// true, a missing checksum is itself an Error.
func Verify(descriptor string, require bool) error {
	if !strings.Contains(descriptor, "#") {
		if require {
			return &Error{Reason: "missing required checksum"}
		}
		return nil
	}
	if len(descriptor) < 9 || descriptor[len(descriptor)-9] != '#' {
		return &Error{Reason: "checksum must be exactly 8 characters"}
	}

	sum := descriptor[len(descriptor)-8:]
	for _, c := range sum {
		if !strings.ContainsRune(OutputCharset, c) {
			return &Error{Reason: fmt.Sprintf(
				"invalid checksum character %q", c,
			)}
		}
	}

	body := descriptor[:len(descriptor)-9]
	symbols, err := expand(body)
	if err != nil {
		return err
	}
	for _, c := range sum {
		symbols = append(
			symbols, uint64(strings.IndexRune(OutputCharset, c)),
		)
	}

	if polymod(symbols) != 1 {
		return &Error{Reason: "checksum mismatch"}
	}
	return nil
}

// Strip removes a trailing "#CHECKSUM" from a descriptor, if present,
// without validating it.
func Strip(descriptor string) string {
	if idx := strings.LastIndex(descriptor, "#"); idx == len(descriptor)-9 {
		return descriptor[:idx]
	}
	return descriptor
}
