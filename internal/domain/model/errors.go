package model

import "errors"

// ErrPrecondition marks programmer errors: malformed input that callers
// are expected to never produce.
var ErrPrecondition = errors.New("precondition violation")
