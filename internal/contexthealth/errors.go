package contexthealth

import "fmt"

// SessionNotFoundError reports an operation against an unknown session.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("context health: session %s not found", e.SessionID)
}

// SummarizationError reports a failed compaction summary.
type SummarizationError struct {
	SessionID string
	Err       error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("context health: summarization failed for session %s: %v", e.SessionID, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// RotationError reports a rotation that cannot proceed: the session is
// already rotated, missing, or still inside the rotation cooldown.
type RotationError struct {
	SessionID string
	Reason    string
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("context health: cannot rotate session %s: %s", e.SessionID, e.Reason)
}
