package descriptors

import "fmt"

// DescriptorParseError reports a top-level descriptor form the grammar
// dispatcher in expand.go does not recognize, or one whose shape doesn't
// match its form (e.g. a path on a raw `addr(...)`).
type DescriptorParseError struct {
	Descriptor string
	Reason     string
}

func (e *DescriptorParseError) Error() string {
	return fmt.Sprintf("cannot parse descriptor %q: %s", e.Descriptor, e.Reason)
}

// SpendPathError reports a `taprootSpendPath=script` construction option
// applied to a descriptor with no script tree (`tr(KEY)`) or to a
// non-taproot form, per spec.md §4.8.
type SpendPathError struct {
	Reason string
}

func (e *SpendPathError) Error() string {
	return fmt.Sprintf("taproot spend-path error: %s", e.Reason)
}

// PsbtShapeError reports a PSBT updater/finalizer precondition violation:
// a missing txHex for a non-segwit input, a scriptPubKey/txid/value
// mismatch, or an incompatible sequence/locktime combination. Output's
// PSBT methods return such violations as psbtutil.ShapeError, unchanged;
// no function in this package returns a PsbtShapeError.
type PsbtShapeError struct {
	Reason string
}

func (e *PsbtShapeError) Error() string {
	return fmt.Sprintf("psbt shape error: %s", e.Reason)
}
