package domain

import "errors"

// ErrNotFound is returned when the addressed order, stop or route does not exist.
var ErrNotFound = errors.New("not found")
