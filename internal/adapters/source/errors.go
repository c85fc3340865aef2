package source

import "errors"

// Sentinel errors for the data source boundary.
var (
	// ErrDataUnavailable means the list is still loading. It is a state,
	// not a failure.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrFetchFailed wraps any failure to obtain a list.
	ErrFetchFailed = errors.New("fetch failed")

	ErrMalformed  = errors.New("malformed ranking payload")
	ErrClosed     = errors.New("resource closed")
	ErrSuperseded = errors.New("load superseded by a newer one")
)
