package notify

import "errors"

// Sentinel errors for notice delivery.
var (
	ErrNoRecipient = errors.New("notice has no recipient")
	ErrDelivery    = errors.New("notice delivery failed")
)
