package descriptors

// Descriptor is the older, expression-first name for Output. It survives
// as a plain alias so existing callers keep compiling; nothing is layered
// on top of Output anymore.
//
// Deprecated: use Parse and Output directly.
type Descriptor = Output

// NewDescriptor is the compatibility constructor for the Descriptor name:
// it forwards straight to Parse.
//
// Deprecated: use Parse.
func NewDescriptor(expression string, opts Options) (*Descriptor, error) {
	return Parse(expression, opts)
}
