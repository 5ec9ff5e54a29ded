package engine

import "errors"

// ErrUnexpected wraps faults that are not a missing store: panics and
// other errors raised while aggregating or matching.
var ErrUnexpected = errors.New("unexpected correlation failure")
