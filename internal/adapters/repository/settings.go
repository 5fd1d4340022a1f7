package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/okian/leadrouter/internal/domain/params"
	"github.com/okian/leadrouter/internal/domain/routing"
)

// GuardianParams implements params.Source. Missing keys and NULL values are
// left nil for the provider to default.
func (s *SQLiteStore) GuardianParams(ctx context.Context) (params.Raw, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key IN (?, ?, ?, ?)`,
		params.KeyExternalAttemptLimit, params.KeyExternalSLAMinutes,
		params.KeyInternalAttemptLimit, params.KeyInternalSLAMinutes)
	if err != nil {
		return params.Raw{}, fmt.Errorf("%w: settings: %w", ErrStorage, err)
	}
	defer rows.Close()

	var raw params.Raw
	for rows.Next() {
		var (
			key   string
			value sql.NullInt64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return params.Raw{}, fmt.Errorf("%w: settings: %w", ErrStorage, err)
		}
		if !value.Valid {
			continue
		}
		v := int(value.Int64)
		switch key {
		case params.KeyExternalAttemptLimit:
			raw.ExternalAttemptLimit = &v
		case params.KeyExternalSLAMinutes:
			raw.ExternalSLAMinutes = &v
		case params.KeyInternalAttemptLimit:
			raw.InternalAttemptLimit = &v
		case params.KeyInternalSLAMinutes:
			raw.InternalSLAMinutes = &v
		}
	}
	if err := rows.Err(); err != nil {
		return params.Raw{}, fmt.Errorf("%w: settings: %w", ErrStorage, err)
	}
	return raw, nil
}

// SetParam stores one routing parameter. A nil value clears it.
func (s *SQLiteStore) SetParam(ctx context.Context, key string, value *int) error {
	var v sql.NullInt64
	if value != nil {
		v = sql.NullInt64{Int64: int64(*value), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, v)
	if err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrStorage, key, err)
	}
	return nil
}

// RecordAudit appends one audit row. Detail is stored as JSON.
func (s *SQLiteStore) RecordAudit(ctx context.Context, e routing.AuditEntry) error {
	var detail sql.NullString
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("%w: encode audit detail: %w", ErrStorage, err)
		}
		detail = sql.NullString{String: string(b), Valid: true}
	}
	var prospectID, assignmentID sql.NullInt64
	if e.ProspectID != 0 {
		prospectID = sql.NullInt64{Int64: e.ProspectID, Valid: true}
	}
	if e.AssignmentID != 0 {
		assignmentID = sql.NullInt64{Int64: e.AssignmentID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log (action, prospect_id, assignment_id, broker_id, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		e.Action, prospectID, assignmentID, nullString(e.BrokerID), detail, toMillis(e.At))
	if err != nil {
		return fmt.Errorf("%w: audit %s: %w", ErrStorage, e.Action, err)
	}
	return nil
}

// AuditRecord is a stored audit row.
type AuditRecord struct {
	routing.AuditEntry
	ID int64
}

// AuditLog returns the audit rows of a prospect, oldest first.
func (s *SQLiteStore) AuditLog(ctx context.Context, prospectID int64) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, action, COALESCE(prospect_id, 0), COALESCE(assignment_id, 0), COALESCE(broker_id, ''), detail, created_at
FROM audit_log WHERE prospect_id = ? ORDER BY id`, prospectID)
	if err != nil {
		return nil, fmt.Errorf("%w: audit log %d: %w", ErrStorage, prospectID, err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			r       AuditRecord
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Action, &r.ProspectID, &r.AssignmentID, &r.BrokerID, &detail, &created); err != nil {
			return nil, fmt.Errorf("%w: audit log %d: %w", ErrStorage, prospectID, err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &r.Detail); err != nil {
				return nil, fmt.Errorf("%w: audit detail %d: %w", ErrStorage, r.ID, err)
			}
		}
		r.At = fromMillis(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: audit log %d: %w", ErrStorage, prospectID, err)
	}
	return out, nil
}
