package isowrap

// MethodPolicy is the frozen per-method payload-transport configuration.
// Each flag selects move (ownership transfer) over copy (deep clone) for
// one payload class. ExecuteBlocksInPlace runs a supplied block inside
// the server's domain instead of relaying invocations back to the caller.
type MethodPolicy struct {
	MoveArguments        bool
	MoveResults          bool
	MoveBlockArguments   bool
	MoveBlockResults     bool
	ExecuteBlocksInPlace bool
}

// PolicySettings is the six-field configuration a MethodPolicy is built
// from. The four specific move flags inherit from MoveData when unset;
// ExecuteBlocksInPlace ignores MoveData and defaults to false.
type PolicySettings struct {
	MoveData             *bool
	MoveArguments        *bool
	MoveResults          *bool
	MoveBlockArguments   *bool
	MoveBlockResults     *bool
	ExecuteBlocksInPlace bool
}

// NewMethodPolicy normalizes settings into a frozen MethodPolicy.
func NewMethodPolicy(s PolicySettings) MethodPolicy {
	return MethodPolicy{
		MoveArguments:        interpret(s.MoveArguments, s.MoveData),
		MoveResults:          interpret(s.MoveResults, s.MoveData),
		MoveBlockArguments:   interpret(s.MoveBlockArguments, s.MoveData),
		MoveBlockResults:     interpret(s.MoveBlockResults, s.MoveData),
		ExecuteBlocksInPlace: s.ExecuteBlocksInPlace,
	}
}

// interpret resolves a specific flag against its base: a set specific
// value wins in both directions, an unset one inherits the base, and an
// unset base means false.
func interpret(specific, base *bool) bool {
	if specific != nil {
		return *specific
	}
	if base != nil {
		return *base
	}
	return false
}

// Flag is a convenience for building PolicySettings literals.
func Flag(v bool) *bool {
	return &v
}
