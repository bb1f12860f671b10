// Package psbtutil implements spec.md §4.10/§4.11's PSBT input/output
// updater and finalizer as free functions over *psbt.Packet, generalizing
// cmd/chantools/signpsbt.go's direct-field-manipulation style (no Updater/
// Finalizer wrapper type, no monkey-patched methods) to arbitrary
// descriptor Outputs instead of chantools's single hardcoded P2WKH case.
package psbtutil

import "fmt"

// ShapeError reports a PSBT precondition violation: a missing txHex for a
// non-segwit input, a scriptPubKey/txid/value mismatch, or an incompatible
// sequence/locktime combination. The descriptors package's Output methods
// return it unchanged; they do not convert it to a PsbtShapeError.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("psbt shape error: %s", e.Reason)
}
