// Package params supplies guardian routing parameters with safe fallbacks.
package params

import (
	"context"

	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/pkg/logger"
	"github.com/okian/leadrouter/pkg/metrics"
)

// Parameter names as stored in the settings table.
const (
	KeyExternalAttemptLimit = "external_attempt_limit"
	KeyExternalSLAMinutes   = "external_sla_minutes"
	KeyInternalAttemptLimit = "internal_attempt_limit"
	KeyInternalSLAMinutes   = "internal_sla_minutes"
)

// Raw holds parameter values as read from storage. A nil field means the
// value is absent.
type Raw struct {
	ExternalAttemptLimit *int
	ExternalSLAMinutes   *int
	InternalAttemptLimit *int
	InternalSLAMinutes   *int
}

// Source reads raw guardian parameters.
type Source interface {
	GuardianParams(ctx context.Context) (Raw, error)
}

// Loader returns a usable parameter snapshot. It never fails.
type Loader interface {
	GuardianConfig(ctx context.Context) model.GuardianConfig
}

// Provider reads parameters from a Source and replaces missing or
// non-positive values with defaults.
type Provider struct {
	source Source
	logger logger.Logger
}

// NewProvider builds a Provider over source.
func NewProvider(source Source, opts ...Option) *Provider {
	p := &Provider{
		source: source,
		logger: logger.Get().Named("params"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GuardianConfig loads a snapshot. A source error yields the full defaults.
func (p *Provider) GuardianConfig(ctx context.Context) model.GuardianConfig {
	defaults := model.DefaultGuardianConfig()

	raw, err := p.source.GuardianParams(ctx)
	if err != nil {
		p.logger.Warn(ctx, "guardian params unavailable, using defaults", logger.Error(err))
		metrics.RecordConfigFallback("all")
		return defaults
	}

	return model.GuardianConfig{
		ExternalAttemptLimit: p.pick(ctx, KeyExternalAttemptLimit, raw.ExternalAttemptLimit, defaults.ExternalAttemptLimit),
		ExternalSLAMinutes:   p.pick(ctx, KeyExternalSLAMinutes, raw.ExternalSLAMinutes, defaults.ExternalSLAMinutes),
		InternalAttemptLimit: p.pick(ctx, KeyInternalAttemptLimit, raw.InternalAttemptLimit, defaults.InternalAttemptLimit),
		InternalSLAMinutes:   p.pick(ctx, KeyInternalSLAMinutes, raw.InternalSLAMinutes, defaults.InternalSLAMinutes),
	}
}

func (p *Provider) pick(ctx context.Context, key string, v *int, def int) int {
	if v != nil && *v > 0 {
		return *v
	}
	p.logger.Warn(ctx, "guardian param missing or not positive, using default",
		logger.String("param", key),
		logger.Int("default", def),
	)
	metrics.RecordConfigFallback(key)
	return def
}

// Static is a Loader that always returns the same snapshot.
type Static model.GuardianConfig

// GuardianConfig returns the fixed snapshot.
func (s Static) GuardianConfig(context.Context) model.GuardianConfig {
	return model.GuardianConfig(s)
}
