package events

// Well-known channel constructors. Components publish to these so operators
// can subscribe without guessing identifiers.

// SystemChannel carries every gateway-wide event (context health, sweeps,
// registry invalidation, snapshot publication).
func SystemChannel() Channel { return Channel{Type: "system"} }

// SessionChannel carries context-health events scoped to one session.
func SessionChannel(sessionID string) Channel {
	return Channel{Type: "session", ID: sessionID}
}

// RegistryChannel carries manifest load and invalidation events.
func RegistryChannel() Channel { return Channel{Type: "registry"} }

// SnapshotChannel carries aggregated snapshot publications.
func SnapshotChannel() Channel { return Channel{Type: "snapshot"} }

// SweepChannel carries sweep-job lifecycle events.
func SweepChannel() Channel { return Channel{Type: "sweeps"} }

// Event type names published by the core.
const (
	EventContextWarning   = "context.warning"
	EventContextCompacted = "context.compacted"
	EventContextRotated   = "context.emergency_rotated"

	EventRegistryLoaded      = "registry.loaded"
	EventRegistryInvalidated = "registry.invalidated"

	EventSnapshotPublished = "snapshot.published"
	EventSweepCompleted    = "sweep.completed"
)
