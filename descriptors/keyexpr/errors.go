package keyexpr

import "fmt"

// Error reports an invalid key expression: a bad curve point, a malformed
// origin, an overflowed path element, an unparseable form, or a pubkey of
// the wrong length/shape for the requested script family.
type Error struct {
	Expression string
	Reason     string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("key expression %q: %s: %v",
			e.Expression, e.Reason, e.Cause)
	}
	return fmt.Sprintf("key expression %q: %s", e.Expression, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// RangeError signals a "*" present with no index, an index supplied for a
// non-ranged descriptor, a missing/unmatched multipath change value, or a
// non-increasing multipath tuple.
type RangeError struct {
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range error: %s", e.Reason)
}
