package miniscript

import "fmt"

// MiniscriptSanityError reports a miniscript expression that parses but
// fails a structural soundness rule: a duplicate key across sortedmulti/
// multi, a thresh()/multi count out of range for its children or keys, or
// a fragment that is not allowed at the top level of sh(...).
type MiniscriptSanityError struct {
	Reason string
}

func (e *MiniscriptSanityError) Error() string {
	return fmt.Sprintf("miniscript is not sane: %s", e.Reason)
}

// ScriptPolicyError reports a compiled script that violates a consensus or
// standardness limit: the 520-byte P2SH redeemScript cap, the 3600-byte
// P2WSH witnessScript cap, or the 201 non-push opcode budget.
type ScriptPolicyError struct {
	Reason string
	Limit  int
	Actual int
}

func (e *ScriptPolicyError) Error() string {
	return fmt.Sprintf("script policy violation: %s (limit %d, got %d)",
		e.Reason, e.Limit, e.Actual)
}

// SatisfactionError reports that no non-malleable witness could be built
// for a miniscript expression with the signatures/preimages/relative-time
// state a caller supplied.
type SatisfactionError struct {
	Reason string
}

func (e *SatisfactionError) Error() string {
	return fmt.Sprintf("could not satisfy miniscript: %s", e.Reason)
}
