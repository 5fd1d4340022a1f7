// Package seed loads brokers, properties, prospects and routing parameters
// from a YAML fixture into the store.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/leadrouter/internal/adapters/repository"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/params"
)

// Fixture is the YAML document layout.
type Fixture struct {
	Params     Params     `yaml:"params"`
	Brokers    []Broker   `yaml:"brokers"`
	Clients    []Client   `yaml:"clients"`
	Properties []Property `yaml:"properties"`
	Prospects  []Prospect `yaml:"prospects"`
}

// Params are optional routing parameters. Omitted keys are left untouched.
type Params struct {
	ExternalAttemptLimit *int `yaml:"external_attempt_limit"`
	ExternalSLAMinutes   *int `yaml:"external_sla_minutes"`
	InternalAttemptLimit *int `yaml:"internal_attempt_limit"`
	InternalSLAMinutes   *int `yaml:"internal_sla_minutes"`
}

// Area is a covered (state, city).
type Area struct {
	State string `yaml:"state"`
	City  string `yaml:"city"`
}

// Broker is a broker entry. Active defaults to true.
type Broker struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Email     string    `yaml:"email"`
	Type      string    `yaml:"type"`
	OnCall    bool      `yaml:"on_call"`
	Active    *bool     `yaml:"active"`
	Level     int       `yaml:"level"`
	XP        int       `yaml:"xp"`
	CreatedAt time.Time `yaml:"created_at"`
	Areas     []Area    `yaml:"areas"`
}

// Client is a client entry.
type Client struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

// Property is a property entry.
type Property struct {
	ID    int64  `yaml:"id"`
	Code  string `yaml:"code"`
	Title string `yaml:"title"`
	State string `yaml:"state"`
	City  string `yaml:"city"`
	Owner string `yaml:"owner"`
}

// Prospect is a prospect entry. Ids are assigned by the store.
type Prospect struct {
	PropertyID        int64     `yaml:"property_id"`
	ClientID          string    `yaml:"client_id"`
	Message           string    `yaml:"message"`
	ContactPreference string    `yaml:"contact_preference"`
	CreatedAt         time.Time `yaml:"created_at"`
}

// Writer is the store surface the loader needs.
type Writer interface {
	UpsertBroker(ctx context.Context, b model.Broker, areas []model.Area) error
	UpsertClient(ctx context.Context, c repository.Client) error
	UpsertProperty(ctx context.Context, p repository.Property) error
	CreateProspect(ctx context.Context, p model.Prospect) (int64, error)
	SetParam(ctx context.Context, key string, value *int) error
}

// Decode parses a fixture.
func Decode(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return Fixture{}, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if err := f.validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// LoadFile reads and parses the fixture at path.
func LoadFile(path string) (Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("open fixture: %w", err)
	}
	defer fh.Close()
	return Decode(fh)
}

func (f Fixture) validate() error {
	for i, b := range f.Brokers {
		if b.ID == "" {
			return fmt.Errorf("%w: broker %d has no id", ErrInvalidFixture, i)
		}
		if _, err := parseBrokerType(b.Type); err != nil {
			return fmt.Errorf("%w: broker %s: %w", ErrInvalidFixture, b.ID, err)
		}
	}
	for i, p := range f.Properties {
		if p.ID == 0 {
			return fmt.Errorf("%w: property %d has no id", ErrInvalidFixture, i)
		}
	}
	return nil
}

func parseBrokerType(s string) (model.BrokerType, error) {
	switch s {
	case "":
		return "", nil
	case string(model.BrokerExternal), "external":
		return model.BrokerExternal, nil
	case string(model.BrokerInternal), "internal":
		return model.BrokerInternal, nil
	default:
		return "", fmt.Errorf("unknown broker type %q", s)
	}
}

// Summary counts what Apply wrote.
type Summary struct {
	Brokers     int
	Clients     int
	Properties  int
	ProspectIDs []int64
}

// Apply writes f to w. Brokers go first so property owners resolve.
func Apply(ctx context.Context, w Writer, f Fixture, now time.Time) (Summary, error) {
	var s Summary

	settings := []struct {
		key   string
		value *int
	}{
		{params.KeyExternalAttemptLimit, f.Params.ExternalAttemptLimit},
		{params.KeyExternalSLAMinutes, f.Params.ExternalSLAMinutes},
		{params.KeyInternalAttemptLimit, f.Params.InternalAttemptLimit},
		{params.KeyInternalSLAMinutes, f.Params.InternalSLAMinutes},
	}
	for _, kv := range settings {
		if kv.value == nil {
			continue
		}
		if err := w.SetParam(ctx, kv.key, kv.value); err != nil {
			return s, err
		}
	}

	for _, b := range f.Brokers {
		typ, _ := parseBrokerType(b.Type)
		active := b.Active == nil || *b.Active
		created := b.CreatedAt
		if created.IsZero() {
			created = now
		}
		areas := make([]model.Area, 0, len(b.Areas))
		for _, a := range b.Areas {
			areas = append(areas, model.Area{State: a.State, City: a.City})
		}
		err := w.UpsertBroker(ctx, model.Broker{
			ID:         b.ID,
			Name:       b.Name,
			Email:      b.Email,
			Type:       typ,
			OnCall:     b.OnCall,
			Active:     active,
			ScoreLevel: b.Level,
			ScoreXP:    b.XP,
			CreatedAt:  created,
		}, areas)
		if err != nil {
			return s, err
		}
		s.Brokers++
	}

	for _, c := range f.Clients {
		if err := w.UpsertClient(ctx, repository.Client(c)); err != nil {
			return s, err
		}
		s.Clients++
	}

	for _, p := range f.Properties {
		err := w.UpsertProperty(ctx, repository.Property{
			ID:            p.ID,
			Code:          p.Code,
			Title:         p.Title,
			Area:          model.Area{State: p.State, City: p.City},
			OwnerBrokerID: p.Owner,
		})
		if err != nil {
			return s, err
		}
		s.Properties++
	}

	for _, p := range f.Prospects {
		created := p.CreatedAt
		if created.IsZero() {
			created = now
		}
		id, err := w.CreateProspect(ctx, model.Prospect{
			PropertyID:        p.PropertyID,
			ClientID:          p.ClientID,
			Message:           p.Message,
			ContactPreference: p.ContactPreference,
			CreatedAt:         created,
		})
		if err != nil {
			return s, err
		}
		s.ProspectIDs = append(s.ProspectIDs, id)
	}
	return s, nil
}
