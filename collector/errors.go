package collector

import "errors"

// ErrInvalidArgument is returned when a definition is created with a missing name or unit,
// or when a non-finite value is recorded.
var ErrInvalidArgument = errors.New("invalid argument")
