package ptree

import "errors"

// Error kinds. Callers classify failures with errors.Is.
var (
	// ErrIO reports stream read/write failures and magic, version
	// or shape mismatches during binary load.
	ErrIO = errors.New("i/o error")
	// ErrInvalidArgument reports unknown methods or formats,
	// mismatched sequence lengths and references to edges or nodes
	// that do not exist.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNumeric reports saturation, singular transition matrices
	// and non-convergent optimization. Optimization returns the
	// last safe estimate together with this error.
	ErrNumeric = errors.New("numeric error")
	// ErrInconsistent reports neighbor/parent asymmetry detected
	// during a mutation.
	ErrInconsistent = errors.New("inconsistent tree")
)
