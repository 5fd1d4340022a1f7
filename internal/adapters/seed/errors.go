package seed

import "errors"

// ErrInvalidFixture is returned for malformed fixture documents.
var ErrInvalidFixture = errors.New("invalid seed fixture")
