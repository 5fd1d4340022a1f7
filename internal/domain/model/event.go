package model

import "time"

// EventKind identifies a post-commit assignment event.
type EventKind string

// Event kinds consumed by the notifier.
const (
	EventAssignmentCreated  EventKind = "assignment_created"
	EventAssignmentAccepted EventKind = "assignment_accepted"
)

// AssignmentEvent is published after an assignment change commits.
// Consumers must treat it as best-effort.
type AssignmentEvent struct {
	ID         string // unique id for idempotent consumption
	Kind       EventKind
	Assignment Assignment
	Broker     Broker
	Prospect   ProspectContext
	Tier       Tier
	// PreviousBrokerID is set when the assignment escalated away from another broker.
	PreviousBrokerID string
	At               time.Time
}

// Informational reports whether the broker notice is informational (the lead
// is already accepted) rather than acceptance-required.
func (e AssignmentEvent) Informational() bool {
	return e.Assignment.Status == StatusAccepted
}
