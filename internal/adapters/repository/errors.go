package repository

import "errors"

// ErrNotFound is returned for a cohort with no published snapshot.
var ErrNotFound = errors.New("cohort not found")
