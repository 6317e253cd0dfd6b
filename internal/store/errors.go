package store

import "errors"

// ErrNotFound indicates no stored value exists for the requested key.
var ErrNotFound = errors.New("store: option not found")
