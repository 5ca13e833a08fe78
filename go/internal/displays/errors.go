package displays

import "errors"

// ErrDisplayNotFound is returned when no display has the requested public identifier.
var ErrDisplayNotFound = errors.New("display not found")
