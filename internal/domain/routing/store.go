package routing

import (
	"context"
	"time"

	"github.com/okian/leadrouter/internal/domain/model"
)

// Store is the persistence the orchestrator and sweeper need. Writes that
// touch one prospect are serialized per prospect by the implementation.
type Store interface {
	// ProspectContext returns ErrProspectNotFound for unknown ids.
	ProspectContext(ctx context.Context, prospectID int64) (model.ProspectContext, error)
	// Broker returns ErrBrokerNotFound for unknown ids.
	Broker(ctx context.Context, brokerID string) (model.Broker, error)

	// CreateAssignment inserts the row unless the prospect already has an
	// active one, in which case it returns that row and ErrActiveAssignment.
	// When LinkOwner is set the property owner is updated in the same
	// transaction.
	CreateAssignment(ctx context.Context, a NewAssignment) (model.Assignment, error)
	// AcceptAssignment moves the broker's assigned row to accepted and links
	// the property owner. It returns ErrAssignmentNotFound or ErrAssignmentExpired.
	AcceptAssignment(ctx context.Context, prospectID int64, brokerID string, now time.Time) (model.Assignment, error)
	// RejectAssignment moves the broker's assigned row to rejected.
	RejectAssignment(ctx context.Context, prospectID int64, brokerID string, now time.Time) (model.Assignment, error)
	// ExpireAssignment marks the row expired if it is still assigned and
	// reports whether it did.
	ExpireAssignment(ctx context.Context, assignmentID int64, now time.Time) (bool, error)
	// ReinstateAssignment moves an expired row back to assigned. It reports
	// false when the row is not expired or the prospect is active again.
	ReinstateAssignment(ctx context.Context, a model.Assignment, now time.Time) (bool, error)
	// ExpiredAssignments lists assigned rows whose deadline is at or before
	// now, oldest deadline first.
	ExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]model.Assignment, error)
	// NormalizeFixedOwnerDeadlines clears deadlines left on fixed-owner rows.
	NormalizeFixedOwnerDeadlines(ctx context.Context) (int64, error)

	RecordAudit(ctx context.Context, e AuditEntry) error
}

// NewAssignment is a row about to be persisted.
type NewAssignment struct {
	ProspectID int64
	PropertyID int64
	BrokerID   string
	Status     model.Status
	Motive     model.Motive
	ExpiresAt  *time.Time
	// LinkOwner sets the property's owning broker to BrokerID.
	LinkOwner bool
	CreatedAt time.Time
}

// Audit actions.
const (
	AuditAssignmentCreated  = "assignment_created"
	AuditAssignmentAccepted = "assignment_accepted"
	AuditAssignmentRejected = "assignment_rejected"
	AuditAssignmentExpired  = "assignment_expired"
	AuditExpiryReverted     = "assignment_expiry_reverted"
	AuditRoutingFailed      = "routing_failed"
	AuditOwnerDeadlines     = "owner_deadlines_cleared"
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	Action       string
	ProspectID   int64
	AssignmentID int64
	BrokerID     string
	Detail       map[string]any
	At           time.Time
}

// Publisher receives post-commit assignment events.
type Publisher interface {
	Publish(ctx context.Context, e model.AssignmentEvent) error
}
