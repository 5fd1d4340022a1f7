package model

// GuardianConfig holds the tunable routing parameters. A snapshot is taken at
// the start of every routing decision and never mutated.
type GuardianConfig struct {
	ExternalAttemptLimit int `json:"external_attempt_limit"`
	ExternalSLAMinutes   int `json:"external_sla_minutes"`
	InternalAttemptLimit int `json:"internal_attempt_limit"`
	InternalSLAMinutes   int `json:"internal_sla_minutes"`
}

// Default routing parameters used when the configuration source is empty or unreachable.
const (
	DefaultExternalAttemptLimit = 3
	DefaultExternalSLAMinutes   = 5
	DefaultInternalAttemptLimit = 3
	DefaultInternalSLAMinutes   = 15
)

// DefaultGuardianConfig returns {3, 5, 3, 15}.
func DefaultGuardianConfig() GuardianConfig {
	return GuardianConfig{
		ExternalAttemptLimit: DefaultExternalAttemptLimit,
		ExternalSLAMinutes:   DefaultExternalSLAMinutes,
		InternalAttemptLimit: DefaultInternalAttemptLimit,
		InternalSLAMinutes:   DefaultInternalSLAMinutes,
	}
}
