package flags

import "errors"

// ErrEmptyKey is returned for operations on the empty key.
var ErrEmptyKey = errors.New("flag key must not be empty")
