package repository

import (
	"context"
	"fmt"

	"github.com/okian/leadrouter/internal/domain/model"
)

// Stats summarizes stored assignments.
type Stats struct {
	Brokers     int                  `json:"brokers"`
	Prospects   int                  `json:"prospects"`
	Assignments int                  `json:"assignments"`
	ByStatus    map[model.Status]int `json:"by_status"`
}

// Stats counts brokers, prospects and assignments by status.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByStatus: make(map[model.Status]int)}
	err := s.db.QueryRowContext(ctx, `
SELECT (SELECT COUNT(*) FROM brokers), (SELECT COUNT(*) FROM prospects), (SELECT COUNT(*) FROM assignments)`).
		Scan(&st.Brokers, &st.Prospects, &st.Assignments)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %w", ErrStorage, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM assignments GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %w", ErrStorage, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Stats{}, fmt.Errorf("%w: stats: %w", ErrStorage, err)
		}
		st.ByStatus[model.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("%w: stats: %w", ErrStorage, err)
	}
	return st, nil
}
