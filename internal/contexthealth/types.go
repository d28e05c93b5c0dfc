// Package contexthealth tracks per-session token usage for agent CLI
// sessions, projects overflow, and applies graduated interventions:
// warnings, extractive compaction, and emergency rotation with a context
// transfer into a fresh session.
package contexthealth

import "time"

// HealthStatus is the per-session band derived from percent usage.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusWarning   HealthStatus = "warning"
	StatusCritical  HealthStatus = "critical"
	StatusEmergency HealthStatus = "emergency"
)

// SessionStatus is the lifecycle state of a tracked session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionRotated SessionStatus = "rotated"
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenHistoryEntry is one point of the bounded per-session token series.
type TokenHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Tokens    int       `json:"tokens"`
	Delta     int       `json:"delta"`
	Event     string    `json:"event"`
}

// SessionState is the tracked state of one session. Access goes through
// the service; callers receive copies.
type SessionState struct {
	ID             string        `json:"id"`
	Model          string        `json:"model,omitempty"`
	MaxTokens      int           `json:"maxTokens"`
	CurrentTokens  int           `json:"currentTokens"`
	Messages       []Message     `json:"messages"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastCompaction *time.Time    `json:"lastCompaction,omitempty"`
	LastRotation   *time.Time    `json:"lastRotation,omitempty"`
	RotatedFrom    string        `json:"rotatedFrom,omitempty"`
	RotatedTo      string        `json:"rotatedTo,omitempty"`
	Status         SessionStatus `json:"status"`

	history []TokenHistoryEntry
}

// Recommendation is one suggested action for a session.
type Recommendation struct {
	Action                string `json:"action"`
	Urgency               string `json:"urgency"`
	Reason                string `json:"reason"`
	EstimatedTokenSavings int    `json:"estimatedTokenSavings"`
}

// Health is the derived read-model for one session.
type Health struct {
	SessionID                   string              `json:"sessionId"`
	Status                      HealthStatus        `json:"status"`
	CurrentTokens               int                 `json:"currentTokens"`
	MaxTokens                   int                 `json:"maxTokens"`
	PercentUsed                 float64             `json:"percentUsed"`
	ProjectedOverflowInMessages *int                `json:"projectedOverflowInMessages,omitempty"`
	EstimatedTimeToWarningMs    *int64              `json:"estimatedTimeToWarningMs,omitempty"`
	TokenHistory                []TokenHistoryEntry `json:"tokenHistory"`
	LastCompaction              *time.Time          `json:"lastCompaction,omitempty"`
	LastRotation                *time.Time          `json:"lastRotation,omitempty"`
	Recommendations             []Recommendation    `json:"recommendations"`
	CheckedAt                   time.Time           `json:"checkedAt"`
}

// CompactionStrategy selects what compact() does with older messages.
type CompactionStrategy string

const (
	StrategySummarize CompactionStrategy = "summarize"
	StrategyPrune     CompactionStrategy = "prune"
	StrategyBoth      CompactionStrategy = "both"
)

// CompactOptions tunes one compaction.
type CompactOptions struct {
	Strategy CompactionStrategy

	// TargetReduction is the fraction of the session's tokens the
	// summarizable span should cover, in (0, 1). Zero uses the engine
	// default.
	TargetReduction float64
}

// CompactionResult reports the outcome of one compaction.
type CompactionResult struct {
	BeforeTokens       int       `json:"beforeTokens"`
	AfterTokens        int       `json:"afterTokens"`
	Reduction          int       `json:"reduction"`
	ReductionPercent   float64   `json:"reductionPercent"`
	SummarizedSections int       `json:"summarizedSections"`
	PreservedSections  int       `json:"preservedSections"`
	Summaries          []string  `json:"summaries"`
	AppliedAt          time.Time `json:"appliedAt"`
}

// ContextTransfer is the distilled state moved into a rotation target.
type ContextTransfer struct {
	Summary          string    `json:"summary,omitempty"`
	RecentMessages   []Message `json:"recentMessages"`
	ActiveBeads      []string  `json:"activeBeads,omitempty"`
	MemoryRules      []string  `json:"memoryRules,omitempty"`
	SourceTokens     int       `json:"sourceTokens"`
	TransferTokens   int       `json:"transferTokens"`
	CompressionRatio float64   `json:"compressionRatio"`
	TransferredAt    time.Time `json:"transferredAt"`
}

// RotateOptions tunes one rotation.
type RotateOptions struct {
	Reason      string
	ActiveBeads []string
	MemoryRules []string
	MaxTokens   int
	Model       string
}

// RotationResult reports the outcome of one rotation.
type RotationResult struct {
	NewSessionID string          `json:"newSessionId"`
	CheckpointID string          `json:"checkpointId"`
	Transfer     ContextTransfer `json:"transfer"`
	Reason       string          `json:"reason"`
	RotatedAt    time.Time       `json:"rotatedAt"`
}

// RegisterOptions tunes session registration. MaxTokens falls back to the
// model limit table, then the configured default.
type RegisterOptions struct {
	Model     string
	MaxTokens int
}
