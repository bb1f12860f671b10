package taproot

import "fmt"

// Error reports a taproot tree or leaf-selection failure: a malformed
// control block, a missing internal key, an ambiguous textual leaf hint, or
// no leaf the caller's known signatures/preimages can satisfy.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("taproot: %s", e.Reason)
}
