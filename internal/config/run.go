package config

import "time"

// RunConfig bounds the orchestrator's poll loop.
type RunConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	Timeout         time.Duration
}

func GetRunConfig() RunConfig {
	return RunConfig{
		PollInterval:    parseEnvDuration("RUN_POLL_INTERVAL", time.Second),
		MaxPollAttempts: parseEnvInt("RUN_MAX_POLL_ATTEMPTS", 300),
		Timeout:         parseEnvDuration("RUN_TIMEOUT", 5*time.Minute),
	}
}

// GetRelayPendingTTL is how long a dispatched tool call waits for its result.
func GetRelayPendingTTL() time.Duration {
	return parseEnvDuration("RELAY_PENDING_TTL", 15*time.Minute)
}
