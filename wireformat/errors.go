package wireformat

import "errors"

// ErrMalformedPreamble is wrapped by every Parse failure, letting callers
// distinguish a corrupt/truncated object from a transient I/O error.
var ErrMalformedPreamble = errors.New("wireformat: malformed preamble")
