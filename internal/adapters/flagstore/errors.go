package flagstore

import "errors"

// ErrNoPath is returned when Open is called without a database path.
var ErrNoPath = errors.New("flag database path is empty")
