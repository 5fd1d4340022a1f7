package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/routing"
)

const assignmentColumns = `id, prospect_id, broker_id, status, motive, expires_at, accepted_at, created_at, updated_at`

func scanAssignment(row rowScanner) (model.Assignment, error) {
	var (
		a          model.Assignment
		status     string
		motive     sql.NullString
		expiresAt  sql.NullInt64
		acceptedAt sql.NullInt64
		created    int64
		updated    int64
	)
	if err := row.Scan(&a.ID, &a.ProspectID, &a.BrokerID, &status, &motive, &expiresAt, &acceptedAt, &created, &updated); err != nil {
		return model.Assignment{}, err
	}
	m, err := model.UnmarshalMotive([]byte(motive.String))
	if err != nil {
		return model.Assignment{}, fmt.Errorf("assignment %d: %w", a.ID, err)
	}
	a.Status = model.Status(status)
	a.Motive = m
	a.ExpiresAt = timePtr(expiresAt)
	a.AcceptedAt = timePtr(acceptedAt)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return a, nil
}

func collectAssignments(rows *sql.Rows) ([]model.Assignment, error) {
	defer rows.Close()
	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func activeAssignment(ctx context.Context, tx *sql.Tx, prospectID int64) (model.Assignment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments
WHERE prospect_id = ? AND status IN ('assigned', 'accepted')`, prospectID)
	return scanAssignment(row)
}

func assignmentByID(ctx context.Context, tx *sql.Tx, id int64) (model.Assignment, error) {
	return scanAssignment(tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
}

// CreateAssignment inserts a, unless the prospect already holds an active
// assignment. In that case the active row is returned with
// routing.ErrActiveAssignment.
func (s *SQLiteStore) CreateAssignment(ctx context.Context, na routing.NewAssignment) (model.Assignment, error) {
	unlock := s.lockProspect(na.ProspectID)
	defer unlock()

	motive, err := model.MarshalMotive(na.Motive)
	if err != nil {
		return model.Assignment{}, fmt.Errorf("%w: encode motive: %w", ErrStorage, err)
	}

	var (
		out      model.Assignment
		existing bool
	)
	err = s.inTx(ctx, "create_assignment", func(tx *sql.Tx) error {
		current, err := activeAssignment(ctx, tx, na.ProspectID)
		switch {
		case err == nil:
			out, existing = current, true
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("%w: active assignment %d: %w", ErrStorage, na.ProspectID, err)
		}

		var acceptedAt *time.Time
		if na.Status == model.StatusAccepted {
			acceptedAt = &na.CreatedAt
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO assignments (prospect_id, broker_id, status, motive, expires_at, accepted_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			na.ProspectID, na.BrokerID, string(na.Status), string(motive), nullMillis(na.ExpiresAt),
			nullMillis(acceptedAt), toMillis(na.CreatedAt), toMillis(na.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				current, lerr := activeAssignment(ctx, tx, na.ProspectID)
				if lerr != nil {
					return fmt.Errorf("%w: active assignment %d: %w", ErrStorage, na.ProspectID, lerr)
				}
				out, existing = current, true
				return nil
			}
			return fmt.Errorf("%w: insert assignment %d: %w", ErrStorage, na.ProspectID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: assignment id: %w", ErrStorage, err)
		}
		if na.LinkOwner {
			if err := linkOwner(ctx, tx, na.PropertyID, na.BrokerID); err != nil {
				return err
			}
		}
		out, err = assignmentByID(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("%w: reload assignment %d: %w", ErrStorage, id, err)
		}
		return nil
	})
	if err != nil {
		return model.Assignment{}, err
	}
	if existing {
		return out, routing.ErrActiveAssignment
	}
	return out, nil
}

func linkOwner(ctx context.Context, tx *sql.Tx, propertyID int64, brokerID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE properties SET owner_broker_id = ? WHERE id = ?`, brokerID, propertyID); err != nil {
		return fmt.Errorf("%w: link owner of property %d: %w", ErrStorage, propertyID, err)
	}
	return nil
}

// pendingFor returns the broker's assigned row for the prospect.
func pendingFor(ctx context.Context, tx *sql.Tx, prospectID int64, brokerID string) (model.Assignment, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments
WHERE prospect_id = ? AND broker_id = ? AND status = 'assigned'`, prospectID, brokerID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, fmt.Errorf("%w: prospect %d broker %s", routing.ErrAssignmentNotFound, prospectID, brokerID)
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("%w: pending assignment: %w", ErrStorage, err)
	}
	return a, nil
}

// AcceptAssignment accepts the broker's pending assignment and makes the
// broker the property owner.
func (s *SQLiteStore) AcceptAssignment(ctx context.Context, prospectID int64, brokerID string, now time.Time) (model.Assignment, error) {
	unlock := s.lockProspect(prospectID)
	defer unlock()

	var out model.Assignment
	err := s.inTx(ctx, "accept_assignment", func(tx *sql.Tx) error {
		a, err := pendingFor(ctx, tx, prospectID, brokerID)
		if err != nil {
			return err
		}
		if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
			return fmt.Errorf("%w: assignment %d", routing.ErrAssignmentExpired, a.ID)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status = 'accepted', accepted_at = ?, updated_at = ? WHERE id = ?`,
			toMillis(now), toMillis(now), a.ID); err != nil {
			return fmt.Errorf("%w: accept assignment %d: %w", ErrStorage, a.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE properties SET owner_broker_id = ?
WHERE id = (SELECT property_id FROM prospects WHERE id = ?)`, brokerID, prospectID); err != nil {
			return fmt.Errorf("%w: link owner for prospect %d: %w", ErrStorage, prospectID, err)
		}
		out, err = assignmentByID(ctx, tx, a.ID)
		if err != nil {
			return fmt.Errorf("%w: reload assignment %d: %w", ErrStorage, a.ID, err)
		}
		return nil
	})
	return out, err
}

// RejectAssignment rejects the broker's pending assignment.
func (s *SQLiteStore) RejectAssignment(ctx context.Context, prospectID int64, brokerID string, now time.Time) (model.Assignment, error) {
	unlock := s.lockProspect(prospectID)
	defer unlock()

	var out model.Assignment
	err := s.inTx(ctx, "reject_assignment", func(tx *sql.Tx) error {
		a, err := pendingFor(ctx, tx, prospectID, brokerID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE assignments SET status = 'rejected', updated_at = ? WHERE id = ?`,
			toMillis(now), a.ID); err != nil {
			return fmt.Errorf("%w: reject assignment %d: %w", ErrStorage, a.ID, err)
		}
		out, err = assignmentByID(ctx, tx, a.ID)
		if err != nil {
			return fmt.Errorf("%w: reload assignment %d: %w", ErrStorage, a.ID, err)
		}
		return nil
	})
	return out, err
}

// ExpireAssignment flips an assigned row to expired. It reports false when
// the row was already resolved.
func (s *SQLiteStore) ExpireAssignment(ctx context.Context, assignmentID int64, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET status = 'expired', updated_at = ? WHERE id = ? AND status = 'assigned'`,
		toMillis(now), assignmentID)
	if err != nil {
		return false, fmt.Errorf("%w: expire assignment %d: %w", ErrStorage, assignmentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: expire assignment %d: %w", ErrStorage, assignmentID, err)
	}
	return n == 1, nil
}

// ReinstateAssignment moves an expired row back to assigned so a later sweep
// retries it. It reports false when the row is no longer expired or the
// prospect already holds another active assignment.
func (s *SQLiteStore) ReinstateAssignment(ctx context.Context, a model.Assignment, now time.Time) (bool, error) {
	unlock := s.lockProspect(a.ProspectID)
	defer unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET status = 'assigned', updated_at = ? WHERE id = ? AND status = 'expired'`,
		toMillis(now), a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: reinstate assignment %d: %w", ErrStorage, a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: reinstate assignment %d: %w", ErrStorage, a.ID, err)
	}
	return n == 1, nil
}

// ExpiredAssignments lists assigned rows whose deadline is at or before now.
func (s *SQLiteStore) ExpiredAssignments(ctx context.Context, now time.Time, limit int) ([]model.Assignment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments
WHERE status = 'assigned' AND expires_at IS NOT NULL AND expires_at <= ?
ORDER BY expires_at, id
LIMIT ?`, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: expired assignments: %w", ErrStorage, err)
	}
	out, err := collectAssignments(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: expired assignments: %w", ErrStorage, err)
	}
	return out, nil
}

// NormalizeFixedOwnerDeadlines clears deadlines on fixed-owner rows and
// returns how many it changed.
func (s *SQLiteStore) NormalizeFixedOwnerDeadlines(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE assignments SET expires_at = NULL
WHERE expires_at IS NOT NULL AND json_extract(motive, '$.type') = 'fixed_owner'`)
	if err != nil {
		return 0, fmt.Errorf("%w: normalize owner deadlines: %w", ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: normalize owner deadlines: %w", ErrStorage, err)
	}
	return n, nil
}

// Assignments returns every attempt for a prospect, oldest first.
func (s *SQLiteStore) Assignments(ctx context.Context, prospectID int64) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments
WHERE prospect_id = ? ORDER BY created_at, id`, prospectID)
	if err != nil {
		return nil, fmt.Errorf("%w: assignments %d: %w", ErrStorage, prospectID, err)
	}
	out, err := collectAssignments(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: assignments %d: %w", ErrStorage, prospectID, err)
	}
	return out, nil
}

// AssignmentHistory implements history.Source.
func (s *SQLiteStore) AssignmentHistory(ctx context.Context, prospectID int64) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT a.broker_id, COALESCE(b.broker_type, ''), COALESCE(json_extract(a.motive, '$.type'), ''), a.status, a.created_at
FROM assignments a
LEFT JOIN brokers b ON b.id = a.broker_id
WHERE a.prospect_id = ?
ORDER BY a.created_at, a.id`, prospectID)
	if err != nil {
		return nil, fmt.Errorf("%w: history %d: %w", ErrStorage, prospectID, err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e       model.HistoryEntry
			typ     string
			motive  string
			status  string
			created int64
		)
		if err := rows.Scan(&e.BrokerID, &typ, &motive, &status, &created); err != nil {
			return nil, fmt.Errorf("%w: history %d: %w", ErrStorage, prospectID, err)
		}
		e.BrokerType = model.BrokerType(typ)
		e.MotiveType = model.MotiveType(motive)
		e.Status = model.Status(status)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: history %d: %w", ErrStorage, prospectID, err)
	}
	return out, nil
}
