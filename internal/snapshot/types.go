// Package snapshot aggregates the state of the local dev-workflow fleet
// (NTM sessions, beads issue tracking, workflow tool health, Agent Mail)
// into a single cached system snapshot with a folded health summary.
package snapshot

import "time"

// SchemaVersion is the wire version of the aggregate snapshot.
const SchemaVersion = "1.0.0"

// Status is a component or summary health value.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Source names the four collection sources. Used in metrics labels,
// collection results, and summary issues.
type Source string

const (
	SourceNTM       Source = "ntm"
	SourceBeads     Source = "beads"
	SourceTools     Source = "tools"
	SourceAgentMail Source = "agent_mail"
)

// Meta describes one snapshot generation.
type Meta struct {
	SchemaVersion        string    `json:"schemaVersion"`
	GeneratedAt          time.Time `json:"generatedAt"`
	GenerationDurationMs int64     `json:"generationDurationMs"`
}

// HealthSummary folds the four component statuses into one verdict.
// Any unhealthy component makes the summary unhealthy; any degraded or
// unknown component makes it degraded; otherwise healthy.
type HealthSummary struct {
	Status     Status            `json:"status"`
	Components map[Source]Status `json:"components"`
	Issues     []string          `json:"issues"`
}

// NTMSession is one tmux-managed agent session as reported by ntm.
type NTMSession struct {
	Name      string `json:"name"`
	Windows   int    `json:"windows,omitempty"`
	Attached  bool   `json:"attached,omitempty"`
	AgentType string `json:"agentType,omitempty"`
}

// NTMSnapshot is the session-manager view.
type NTMSnapshot struct {
	Available  bool         `json:"available"`
	Version    string       `json:"version,omitempty"`
	Sessions   []NTMSession `json:"sessions"`
	CapturedAt time.Time    `json:"capturedAt"`
}

// BeadsSnapshot is the issue-tracker view, covering both the sync CLI (br)
// and the triage viewer (bv).
type BeadsSnapshot struct {
	Available   bool      `json:"available"`
	BRAvailable bool      `json:"brAvailable"`
	BVAvailable bool      `json:"bvAvailable"`
	ReadyIssues int       `json:"readyIssues"`
	OpenIssues  int       `json:"openIssues"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// WorkflowTool is the status of one guarded workflow CLI (dcg, slb, ubs).
type WorkflowTool struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Fresh     *bool  `json:"fresh,omitempty"`
}

// ToolHealthSnapshot is the workflow-tool view, including checksum
// freshness and detected project ecosystems.
type ToolHealthSnapshot struct {
	Available  bool           `json:"available"`
	Status     Status         `json:"status"`
	Tools      []WorkflowTool `json:"tools"`
	Ecosystems []string       `json:"ecosystems,omitempty"`
	CapturedAt time.Time      `json:"capturedAt"`
}

// MailAgent is one registered Agent Mail participant.
type MailAgent struct {
	Name         string    `json:"name"`
	Program      string    `json:"program,omitempty"`
	RegisteredAt time.Time `json:"registeredAt,omitempty"`
}

// MailMessage is one Agent Mail record. Priority defaults to normal.
type MailMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	Priority  string    `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read,omitempty"`
}

// AgentMailSnapshot is the coordination-mailbox view. Status is healthy
// when agents are registered and degraded when the store exists but is
// empty of agents.
type AgentMailSnapshot struct {
	Available     bool        `json:"available"`
	Status        Status      `json:"status"`
	Agents        []MailAgent `json:"agents"`
	TotalMessages int         `json:"totalMessages"`
	UnreadCount   int         `json:"unreadCount"`
	CapturedAt    time.Time   `json:"capturedAt"`
}

// SystemSnapshot is the full aggregate. All four sub-snapshots are always
// populated; failed sources carry their empty fallback shape.
type SystemSnapshot struct {
	Meta      Meta               `json:"meta"`
	Summary   HealthSummary      `json:"summary"`
	NTM       NTMSnapshot        `json:"ntm"`
	Beads     BeadsSnapshot      `json:"beads"`
	Tools     ToolHealthSnapshot `json:"tools"`
	AgentMail AgentMailSnapshot  `json:"agentMail"`
}

// CollectionResult records one source's collection outcome.
type CollectionResult struct {
	Source    Source `json:"source"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// CacheStats reports the aggregator cache state.
type CacheStats struct {
	Cached    bool      `json:"cached"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
	AgeMs     int64     `json:"ageMs,omitempty"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
}

func emptyNTM(now time.Time) NTMSnapshot {
	return NTMSnapshot{Available: false, Sessions: []NTMSession{}, CapturedAt: now}
}

func emptyBeads(now time.Time) BeadsSnapshot {
	return BeadsSnapshot{Available: false, CapturedAt: now}
}

func emptyTools(now time.Time) ToolHealthSnapshot {
	return ToolHealthSnapshot{Available: false, Status: StatusUnknown, Tools: []WorkflowTool{}, CapturedAt: now}
}

func emptyAgentMail(now time.Time) AgentMailSnapshot {
	return AgentMailSnapshot{Available: false, Status: StatusUnknown, Agents: []MailAgent{}, CapturedAt: now}
}

// FoldStatuses derives the overall summary status from component statuses.
func FoldStatuses(statuses []Status) Status {
	overall := StatusHealthy
	for _, s := range statuses {
		switch s {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusUnknown:
			overall = StatusDegraded
		}
	}
	return overall
}
