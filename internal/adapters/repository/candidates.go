package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/okian/leadrouter/internal/domain/selector"
)

// Candidates implements selector.CandidateSource. Only active brokers are
// returned; ordering is left to the selector.
func (s *SQLiteStore) Candidates(ctx context.Context, f selector.Filter) ([]selector.Candidate, error) {
	var (
		where = []string{"b.active = 1", "b.on_call = ?"}
		args  = []any{boolInt(f.OnCall)}
	)
	if f.Type != "" {
		where = append(where, "COALESCE(NULLIF(b.broker_type, ''), 'External') = ?")
		args = append(args, string(f.Type.Normalize()))
	}
	if f.Area != nil {
		where = append(where, `EXISTS (SELECT 1 FROM broker_areas ba
	WHERE ba.broker_id = b.id AND ba.state = ? AND ba.city = ?)`)
		args = append(args, f.Area.State, f.Area.City)
	}

	q := `SELECT ` + brokerColumns + `,
	(SELECT COUNT(*) FROM assignments a WHERE a.broker_id = b.id),
	(SELECT MAX(a.created_at) FROM assignments a WHERE a.broker_id = b.id)
FROM brokers b
WHERE ` + strings.Join(where, " AND ")

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: candidates: %w", ErrStorage, err)
	}
	defer rows.Close()

	var out []selector.Candidate
	for rows.Next() {
		var (
			total int
			last  sql.NullInt64
		)
		b, err := scanBroker(rows, &total, &last)
		if err != nil {
			return nil, fmt.Errorf("%w: candidates: %w", ErrStorage, err)
		}
		out = append(out, selector.Candidate{Broker: b, TotalAssignments: total, LastReceivedAt: timePtr(last)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: candidates: %w", ErrStorage, err)
	}
	return out, nil
}
