package protocol

import "time"

var defaultTTLs = map[string]time.Duration{
	TypeConnectionChanged: 5 * time.Minute,
	TypeServiceHealth:     10 * time.Minute,
	TypePowerCycle:        10 * time.Minute,
	TypeWorkflowRun:       60 * time.Minute,
	TypeActionResult:      30 * time.Minute,

	// stale motion commands must never reach the robot
	TypeMotionStop:        30 * time.Second,
	TypeWorkflowSubmit:    2 * time.Minute,
	TypePowerCycleRequest: 2 * time.Minute,

	TypeCommandResult: 10 * time.Minute,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = 10 * time.Minute

// DefaultTTLFor returns the default TTL for a message type.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool {
	if env.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(env.ExpiresAt)
}

// IsExpiredHeader checks expiry using only the raw header.
func IsExpiredHeader(hdr *RawHeader) bool {
	if hdr.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(hdr.ExpiresAt)
}
