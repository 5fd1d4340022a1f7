package repository

import "errors"

// ErrStorage wraps database failures that are not domain outcomes.
var ErrStorage = errors.New("storage error")
