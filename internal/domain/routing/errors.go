package routing

import "errors"

// Sentinel errors for routing. Store implementations return the store ones so
// callers can match with errors.Is.
var (
	ErrNoEligibleBroker = errors.New("no eligible broker")
	ErrProspectNotFound = errors.New("prospect not found")
	ErrMissingLocation  = errors.New("prospect has no state or city")
	ErrBrokerNotFound   = errors.New("broker not found")

	ErrActiveAssignment   = errors.New("prospect already has an active assignment")
	ErrAssignmentNotFound = errors.New("no pending assignment for broker")
	ErrAssignmentExpired  = errors.New("assignment deadline has passed")

	ErrSweepInProgress = errors.New("sweep already running")
)
