package selector

import "errors"

// Sentinel errors for broker selection.
var (
	ErrUnknownTier           = errors.New("unknown tier")
	ErrCandidatesUnavailable = errors.New("broker candidates unavailable")
)
