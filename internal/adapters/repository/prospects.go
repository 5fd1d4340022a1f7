package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/routing"
)

const brokerColumns = `b.id, b.name, b.email, COALESCE(b.broker_type, ''), b.on_call, b.active,
	b.score_level, b.score_xp, b.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBroker(row rowScanner, extra ...any) (model.Broker, error) {
	var (
		b         model.Broker
		typ       string
		created   int64
		onCall    int
		active    int
		baseDests = []any{&b.ID, &b.Name, &b.Email, &typ, &onCall, &active, &b.ScoreLevel, &b.ScoreXP, &created}
	)
	if err := row.Scan(append(baseDests, extra...)...); err != nil {
		return model.Broker{}, err
	}
	b.Type = model.BrokerType(typ).Normalize()
	b.OnCall = onCall != 0
	b.Active = active != 0
	b.CreatedAt = fromMillis(created)
	return b, nil
}

// Broker returns one broker.
func (s *SQLiteStore) Broker(ctx context.Context, brokerID string) (model.Broker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+brokerColumns+` FROM brokers b WHERE b.id = ?`, brokerID)
	b, err := scanBroker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Broker{}, fmt.Errorf("%w: %s", routing.ErrBrokerNotFound, brokerID)
	}
	if err != nil {
		return model.Broker{}, fmt.Errorf("%w: broker %s: %w", ErrStorage, brokerID, err)
	}
	return b, nil
}

// ProspectContext returns the prospect with its property, area and client.
func (s *SQLiteStore) ProspectContext(ctx context.Context, prospectID int64) (model.ProspectContext, error) {
	const q = `
SELECT p.id, p.property_id, p.client_id, p.message, p.contact_preference, p.created_at,
	pr.state, pr.city, COALESCE(pr.owner_broker_id, ''), pr.code, pr.title,
	COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(c.phone, '')
FROM prospects p
JOIN properties pr ON pr.id = p.property_id
LEFT JOIN clients c ON c.id = p.client_id
WHERE p.id = ?`

	var (
		pc      model.ProspectContext
		created int64
	)
	err := s.db.QueryRowContext(ctx, q, prospectID).Scan(
		&pc.ID, &pc.PropertyID, &pc.ClientID, &pc.Message, &pc.ContactPreference, &created,
		&pc.Area.State, &pc.Area.City, &pc.OwnerBrokerID, &pc.PropertyCode, &pc.PropertyTitle,
		&pc.ClientName, &pc.ClientEmail, &pc.ClientPhone,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProspectContext{}, fmt.Errorf("%w: %d", routing.ErrProspectNotFound, prospectID)
	}
	if err != nil {
		return model.ProspectContext{}, fmt.Errorf("%w: prospect %d: %w", ErrStorage, prospectID, err)
	}
	pc.CreatedAt = fromMillis(created)
	return pc, nil
}

// UpsertBroker inserts or replaces a broker and its coverage.
func (s *SQLiteStore) UpsertBroker(ctx context.Context, b model.Broker, areas []model.Area) error {
	return s.inTx(ctx, "upsert_broker", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO brokers (id, name, email, broker_type, on_call, active, score_level, score_xp, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, email = excluded.email, broker_type = excluded.broker_type,
	on_call = excluded.on_call, active = excluded.active, score_level = excluded.score_level,
	score_xp = excluded.score_xp`,
			b.ID, b.Name, b.Email, nullString(string(b.Type)), boolInt(b.OnCall), boolInt(b.Active),
			b.ScoreLevel, b.ScoreXP, toMillis(b.CreatedAt))
		if err != nil {
			return fmt.Errorf("%w: upsert broker %s: %w", ErrStorage, b.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM broker_areas WHERE broker_id = ?`, b.ID); err != nil {
			return fmt.Errorf("%w: clear areas %s: %w", ErrStorage, b.ID, err)
		}
		for _, a := range areas {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO broker_areas (broker_id, state, city) VALUES (?, ?, ?)`,
				b.ID, a.State, a.City); err != nil {
				return fmt.Errorf("%w: add area %s: %w", ErrStorage, b.ID, err)
			}
		}
		return nil
	})
}

// Client is a lead's contact record.
type Client struct {
	ID    string
	Name  string
	Email string
	Phone string
}

// UpsertClient inserts or replaces a client.
func (s *SQLiteStore) UpsertClient(ctx context.Context, c Client) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO clients (id, name, email, phone) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, phone = excluded.phone`,
		c.ID, c.Name, c.Email, c.Phone)
	if err != nil {
		return fmt.Errorf("%w: upsert client %s: %w", ErrStorage, c.ID, err)
	}
	return nil
}

// Property is a listing a prospect refers to.
type Property struct {
	ID            int64
	Code          string
	Title         string
	Area          model.Area
	OwnerBrokerID string
}

// UpsertProperty inserts or replaces a property.
func (s *SQLiteStore) UpsertProperty(ctx context.Context, p Property) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO properties (id, code, title, state, city, owner_broker_id) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	code = excluded.code, title = excluded.title, state = excluded.state, city = excluded.city,
	owner_broker_id = excluded.owner_broker_id`,
		p.ID, p.Code, p.Title, p.Area.State, p.Area.City, nullString(p.OwnerBrokerID))
	if err != nil {
		return fmt.Errorf("%w: upsert property %d: %w", ErrStorage, p.ID, err)
	}
	return nil
}

// CreateProspect inserts a prospect and returns its id.
func (s *SQLiteStore) CreateProspect(ctx context.Context, p model.Prospect) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO prospects (property_id, client_id, message, contact_preference, created_at)
VALUES (?, ?, ?, ?, ?)`,
		p.PropertyID, p.ClientID, p.Message, p.ContactPreference, toMillis(p.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("%w: create prospect: %w", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: prospect id: %w", ErrStorage, err)
	}
	return id, nil
}
