package contexthealth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/opsgate/internal/events"
	"github.com/haasonsaas/opsgate/internal/observability"
)

// ErrSessionRotated is returned when messages are appended to a session
// that has already been rotated away.
var ErrSessionRotated = errors.New("session is rotated and no longer accepts messages")

// Config configures the context health engine.
type Config struct {
	// DefaultMaxTokens is the context window assumed when neither the
	// registration nor the model limit table provides one.
	DefaultMaxTokens int

	// ModelLimits maps model names to their context windows.
	ModelLimits map[string]int

	// Thresholds are percent-used bands. Defaults 75/85/95.
	WarningThreshold   float64
	CriticalThreshold  float64
	EmergencyThreshold float64

	// MaxHistoryEntries bounds the per-session token history series.
	MaxHistoryEntries int

	// MonitorInterval is the periodic health check cadence.
	MonitorInterval time.Duration

	// AutoHealing enables graduated interventions during health checks.
	AutoHealing bool

	// SummarizationEnabled allows critical-band compaction and rotation
	// transfer summaries.
	SummarizationEnabled bool

	// RotationEnabled allows emergency-band rotation.
	RotationEnabled bool

	// RotationCooldown is the minimum gap between rotations of one session.
	RotationCooldown time.Duration

	// PreserveRecentCount and PreserveRecentWindow bound the messages a
	// compaction always keeps: the most recent N, plus anything newer
	// than the window.
	PreserveRecentCount  int
	PreserveRecentWindow time.Duration

	// DefaultTargetReduction is the compaction goal when the caller gives
	// none.
	DefaultTargetReduction float64

	// TransferRecentCount is how many trailing messages a rotation carries
	// into the new session.
	TransferRecentCount int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMaxTokens: 200_000,
		ModelLimits: map[string]int{
			"claude-sonnet": 200_000,
			"claude-opus":   200_000,
			"claude-haiku":  200_000,
			"gpt-4o":        128_000,
			"gemini-pro":    1_000_000,
		},
		WarningThreshold:       75,
		CriticalThreshold:      85,
		EmergencyThreshold:     95,
		MaxHistoryEntries:      200,
		MonitorInterval:        30 * time.Second,
		AutoHealing:            true,
		SummarizationEnabled:   true,
		RotationEnabled:        true,
		RotationCooldown:       5 * time.Minute,
		PreserveRecentCount:    10,
		PreserveRecentWindow:   10 * time.Minute,
		DefaultTargetReduction: 0.5,
		TransferRecentCount:    5,
	}
}

// escalationFloor is the percent-used at which a failed compaction
// escalates straight to rotation.
const escalationFloor = 93.0

// Service tracks sessions and applies interventions. All session state is
// guarded by one mutex; no lock is held across hub publication or while
// another session operation runs.
type Service struct {
	cfg     Config
	logger  *observability.Logger
	metrics *observability.Metrics
	hub     events.Publisher

	mu       sync.Mutex
	sessions map[string]*SessionState
	bands    map[string]HealthStatus

	monitorStop chan struct{}
	monitorWG   sync.WaitGroup
}

// NewService creates a context health engine. Metrics may be nil; hub may
// be nil for a publish-free instance.
func NewService(cfg Config, logger *observability.Logger, metrics *observability.Metrics, hub events.Publisher) *Service {
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 200_000
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 75
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = 85
	}
	if cfg.EmergencyThreshold <= 0 {
		cfg.EmergencyThreshold = 95
	}
	if cfg.MaxHistoryEntries <= 0 {
		cfg.MaxHistoryEntries = 200
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Second
	}
	if cfg.RotationCooldown <= 0 {
		cfg.RotationCooldown = 5 * time.Minute
	}
	if cfg.PreserveRecentCount <= 0 {
		cfg.PreserveRecentCount = 10
	}
	if cfg.PreserveRecentWindow <= 0 {
		cfg.PreserveRecentWindow = 10 * time.Minute
	}
	if cfg.DefaultTargetReduction <= 0 {
		cfg.DefaultTargetReduction = 0.5
	}
	if cfg.TransferRecentCount <= 0 {
		cfg.TransferRecentCount = 5
	}
	if hub == nil {
		hub = events.NopPublisher{}
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		hub:      hub,
		sessions: map[string]*SessionState{},
		bands:    map[string]HealthStatus{},
	}
}

// resolveMaxTokens applies the arg > model table > default precedence.
func (s *Service) resolveMaxTokens(opts RegisterOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	if limit, ok := s.cfg.ModelLimits[opts.Model]; ok {
		return limit
	}
	return s.cfg.DefaultMaxTokens
}

// RegisterSession starts tracking a session. Re-registering an existing id
// returns the current state unchanged.
func (s *Service) RegisterSession(id string, opts RegisterOptions) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[id]; ok {
		return copyState(existing)
	}

	state := &SessionState{
		ID:        id,
		Model:     opts.Model,
		MaxTokens: s.resolveMaxTokens(opts),
		Messages:  []Message{},
		CreatedAt: time.Now(),
		Status:    SessionActive,
	}
	s.sessions[id] = state
	s.setBandLocked(id, StatusHealthy)
	return copyState(state)
}

// UnregisterSession releases a session's state.
func (s *Service) UnregisterSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	s.clearBandLocked(id)
}

// Session returns a copy of a session's state.
func (s *Service) Session(id string) (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[id]
	if !ok {
		return SessionState{}, false
	}
	return copyState(state), true
}

// SessionIDs lists tracked sessions.
func (s *Service) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// UpdateTokens records an absolute token count with an event label. The
// delta against the previous count goes into the bounded history series.
func (s *Service) UpdateTokens(id string, tokens int, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[id]
	if !ok {
		return &SessionNotFoundError{SessionID: id}
	}

	entry := TokenHistoryEntry{
		Timestamp: time.Now(),
		Tokens:    tokens,
		Delta:     tokens - state.CurrentTokens,
		Event:     event,
	}
	state.CurrentTokens = tokens
	state.history = append(state.history, entry)
	if over := len(state.history) - s.cfg.MaxHistoryEntries; over > 0 {
		state.history = state.history[over:]
	}
	return nil
}

// eventMessage is the history label for message appends; projections key
// off it.
const eventMessage = "message"

// AddMessage appends a message and bumps the token count by the message's
// estimated cost.
func (s *Service) AddMessage(id string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[id]
	if !ok {
		return &SessionNotFoundError{SessionID: id}
	}
	if state.Status == SessionRotated {
		return fmt.Errorf("session %s: %w", id, ErrSessionRotated)
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	state.Messages = append(state.Messages, msg)

	tokens := state.CurrentTokens + CountTokens(msg.Content)
	entry := TokenHistoryEntry{
		Timestamp: time.Now(),
		Tokens:    tokens,
		Delta:     tokens - state.CurrentTokens,
		Event:     eventMessage,
	}
	state.CurrentTokens = tokens
	state.history = append(state.history, entry)
	if over := len(state.history) - s.cfg.MaxHistoryEntries; over > 0 {
		state.history = state.history[over:]
	}
	return nil
}

// statusFor maps percent-used to a band.
func (s *Service) statusFor(percentUsed float64) HealthStatus {
	switch {
	case percentUsed >= s.cfg.EmergencyThreshold:
		return StatusEmergency
	case percentUsed >= s.cfg.CriticalThreshold:
		return StatusCritical
	case percentUsed >= s.cfg.WarningThreshold:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// CheckHealth computes the session's health read-model and, when auto
// healing is on, applies the graduated intervention for its band.
func (s *Service) CheckHealth(ctx context.Context, id string) (*Health, error) {
	s.mu.Lock()
	state, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, &SessionNotFoundError{SessionID: id}
	}

	percentUsed := float64(state.CurrentTokens) / float64(state.MaxTokens) * 100
	status := s.statusFor(percentUsed)

	health := &Health{
		SessionID:      id,
		Status:         status,
		CurrentTokens:  state.CurrentTokens,
		MaxTokens:      state.MaxTokens,
		PercentUsed:    percentUsed,
		TokenHistory:   append([]TokenHistoryEntry{}, state.history...),
		LastCompaction: state.LastCompaction,
		LastRotation:   state.LastRotation,
		CheckedAt:      time.Now(),
	}
	health.ProjectedOverflowInMessages = projectOverflow(state)
	health.EstimatedTimeToWarningMs = s.estimateTimeToWarning(state)
	health.Recommendations = s.recommendations(status, state.CurrentTokens)

	inCooldown := state.LastRotation != nil && time.Since(*state.LastRotation) < s.cfg.RotationCooldown
	s.setBandLocked(id, status)
	s.mu.Unlock()

	if s.cfg.AutoHealing {
		s.intervene(ctx, id, health, inCooldown)
	}
	return health, nil
}

// intervene applies the band's intervention. Runs without the state lock.
func (s *Service) intervene(ctx context.Context, id string, health *Health, rotationInCooldown bool) {
	switch health.Status {
	case StatusWarning:
		s.logger.Warn(ctx, "session approaching context limit",
			"session_id", id, "percent_used", health.PercentUsed)
		s.publish(id, events.EventContextWarning, map[string]any{
			"sessionId":     id,
			"currentTokens": health.CurrentTokens,
			"maxTokens":     health.MaxTokens,
			"percentUsed":   health.PercentUsed,
		})
		s.countIntervention("warning", "ok")

	case StatusCritical:
		if !s.cfg.SummarizationEnabled {
			s.countIntervention("compaction", "skipped")
			return
		}
		if _, err := s.Compact(ctx, id, CompactOptions{}); err != nil {
			s.countIntervention("compaction", "failed")
			s.logger.Error(ctx, "automatic compaction failed", "session_id", id, "error", err)
			if health.PercentUsed >= escalationFloor {
				s.autoRotate(ctx, id, rotationInCooldown, "compaction failed above escalation floor")
			}
			return
		}
		s.countIntervention("compaction", "ok")

	case StatusEmergency:
		s.autoRotate(ctx, id, rotationInCooldown, "context usage at emergency threshold")
	}
}

// autoRotate is the auto-healing rotation path: cooldown and disabled
// rotation are soft skips, not errors.
func (s *Service) autoRotate(ctx context.Context, id string, inCooldown bool, reason string) {
	if !s.cfg.RotationEnabled {
		s.countIntervention("rotation", "skipped")
		return
	}
	if inCooldown {
		s.countIntervention("rotation", "skipped")
		s.logger.Warn(ctx, "rotation needed but still in cooldown", "session_id", id)
		return
	}
	if _, err := s.Rotate(ctx, id, RotateOptions{Reason: reason}); err != nil {
		s.countIntervention("rotation", "failed")
		s.logger.Error(ctx, "automatic rotation failed", "session_id", id, "error", err)
		return
	}
	s.countIntervention("rotation", "ok")
}

// projectOverflow estimates how many more messages fit before overflow,
// from the last ten positive message deltas. Nil when under three such
// points or the average is non-positive.
func projectOverflow(state *SessionState) *int {
	var deltas []int
	for i := len(state.history) - 1; i >= 0 && len(deltas) < 10; i-- {
		e := state.history[i]
		if e.Event == eventMessage && e.Delta > 0 {
			deltas = append(deltas, e.Delta)
		}
	}
	if len(deltas) < 3 {
		return nil
	}
	sum := 0
	for _, d := range deltas {
		sum += d
	}
	avg := float64(sum) / float64(len(deltas))
	if avg <= 0 {
		return nil
	}
	remaining := state.MaxTokens - state.CurrentTokens
	n := int(math.Ceil(float64(remaining) / avg))
	return &n
}

// estimateTimeToWarning projects wall-clock time until the warning
// threshold from recent token velocity. Zero when already past the
// threshold; nil when velocity is non-positive or history is too thin.
func (s *Service) estimateTimeToWarning(state *SessionState) *int64 {
	warningTokens := int(float64(state.MaxTokens) * s.cfg.WarningThreshold / 100)
	if state.CurrentTokens >= warningTokens {
		zero := int64(0)
		return &zero
	}

	window := state.history
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	if len(window) < 2 {
		return nil
	}
	first, last := window[0], window[len(window)-1]
	elapsed := last.Timestamp.Sub(first.Timestamp)
	if elapsed <= 0 || last.Tokens <= first.Tokens {
		return nil
	}

	velocity := float64(last.Tokens-first.Tokens) / float64(elapsed.Milliseconds())
	if velocity <= 0 {
		return nil
	}
	ms := int64(float64(warningTokens-state.CurrentTokens) / velocity)
	return &ms
}

// recommendations maps a band to its standing advice.
func (s *Service) recommendations(status HealthStatus, currentTokens int) []Recommendation {
	switch status {
	case StatusWarning:
		return []Recommendation{{
			Action:                "summarize",
			Urgency:               "medium",
			Reason:                "context usage past warning threshold",
			EstimatedTokenSavings: currentTokens * 20 / 100,
		}}
	case StatusCritical:
		return []Recommendation{{
			Action:                "compact",
			Urgency:               "high",
			Reason:                "context usage past critical threshold",
			EstimatedTokenSavings: currentTokens * 30 / 100,
		}}
	case StatusEmergency:
		return []Recommendation{{
			Action:                "rotate",
			Urgency:               "critical",
			Reason:                "context usage past emergency threshold",
			EstimatedTokenSavings: currentTokens * 80 / 100,
		}}
	default:
		return []Recommendation{{
			Action:                "none",
			Urgency:               "low",
			Reason:                "context usage within healthy bounds",
			EstimatedTokenSavings: 0,
		}}
	}
}

// Compact reduces a session's context by summarizing and pruning older
// messages while preserving recent conversation.
func (s *Service) Compact(ctx context.Context, id string, opts CompactOptions) (*CompactionResult, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyBoth
	}
	if opts.TargetReduction <= 0 {
		opts.TargetReduction = s.cfg.DefaultTargetReduction
	}

	s.mu.Lock()
	state, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, &SessionNotFoundError{SessionID: id}
	}

	before := state.CurrentTokens
	preserved, summarizable := s.partitionLocked(state, opts.TargetReduction)

	summarize := opts.Strategy == StrategySummarize || opts.Strategy == StrategyBoth
	prune := opts.Strategy == StrategyPrune || opts.Strategy == StrategyBoth

	result := &CompactionResult{
		BeforeTokens:       before,
		SummarizedSections: len(summarizable),
		PreservedSections:  len(preserved),
		Summaries:          []string{},
		AppliedAt:          time.Now(),
	}

	var summary string
	if summarize && len(summarizable) > 0 {
		summary = Summarize(summarizable)
		if summary == "" && !prune {
			// Summarize-only compaction with nothing salient would be a
			// silent no-op; surface it instead.
			s.mu.Unlock()
			return nil, &SummarizationError{SessionID: id,
				Err: errors.New("no salient content in summarizable messages")}
		}
		if summary != "" {
			result.Summaries = append(result.Summaries, summary)
		}
	}

	if prune {
		kept := make([]Message, 0, len(preserved)+1)
		if summary != "" {
			kept = append(kept, Message{Role: "system", Content: summary, Timestamp: time.Now()})
		}
		kept = append(kept, preserved...)
		state.Messages = kept

		tokens := 0
		for _, m := range state.Messages {
			tokens += CountTokens(m.Content)
		}
		state.CurrentTokens = tokens
	}

	now := time.Now()
	state.LastCompaction = &now

	result.AfterTokens = state.CurrentTokens
	result.Reduction = result.BeforeTokens - result.AfterTokens
	if result.BeforeTokens > 0 {
		result.ReductionPercent = float64(result.Reduction) / float64(result.BeforeTokens) * 100
	}
	s.mu.Unlock()

	s.publish(id, events.EventContextCompacted, map[string]any{
		"sessionId":        id,
		"beforeTokens":     result.BeforeTokens,
		"afterTokens":      result.AfterTokens,
		"reduction":        result.Reduction,
		"reductionPercent": result.ReductionPercent,
	})
	s.logger.Info(ctx, "session compacted",
		"session_id", id, "before", result.BeforeTokens, "after", result.AfterTokens)
	return result, nil
}

// partitionLocked splits messages into preserved (recent by count or by
// recency window) and summarizable (older history, oldest first, up to the
// requested share of the session's tokens). Caller holds the lock.
func (s *Service) partitionLocked(state *SessionState, targetReduction float64) (preserved, summarizable []Message) {
	cut := len(state.Messages) - s.cfg.PreserveRecentCount
	if cut < 0 {
		cut = 0
	}
	horizon := time.Now().Add(-s.cfg.PreserveRecentWindow)
	for i := 0; i < cut; i++ {
		if state.Messages[i].Timestamp.After(horizon) {
			cut = i
			break
		}
	}
	if targetReduction > 0 && targetReduction < 1 && state.CurrentTokens > 0 {
		budget := int(float64(state.CurrentTokens) * targetReduction)
		spent := 0
		for i := 0; i < cut; i++ {
			spent += CountTokens(state.Messages[i].Content)
			if spent >= budget {
				cut = i + 1
				break
			}
		}
	}
	return state.Messages[cut:], state.Messages[:cut]
}

// Rotate retires a session and transfers its distilled context into a
// fresh one. Fails with RotationError when the session is missing, already
// rotated, or inside the rotation cooldown.
func (s *Service) Rotate(ctx context.Context, id string, opts RotateOptions) (*RotationResult, error) {
	s.mu.Lock()
	state, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, &RotationError{SessionID: id, Reason: "session not found"}
	}
	if state.Status == SessionRotated {
		s.mu.Unlock()
		return nil, &RotationError{SessionID: id, Reason: "session already rotated"}
	}
	if state.LastRotation != nil && time.Since(*state.LastRotation) < s.cfg.RotationCooldown {
		s.mu.Unlock()
		return nil, &RotationError{SessionID: id, Reason: "rotation cooldown in effect"}
	}

	now := time.Now()
	checkpointID := uuid.NewString()
	newID := uuid.NewString()

	transfer := ContextTransfer{
		RecentMessages: lastN(state.Messages, s.cfg.TransferRecentCount),
		ActiveBeads:    opts.ActiveBeads,
		MemoryRules:    opts.MemoryRules,
		SourceTokens:   state.CurrentTokens,
		TransferredAt:  now,
	}
	if s.cfg.SummarizationEnabled {
		transfer.Summary = Summarize(state.Messages)
	}

	seed := formatTransferMessage(transfer)
	transfer.TransferTokens = CountTokens(seed)
	transfer.CompressionRatio = float64(transfer.SourceTokens) / math.Max(1, float64(transfer.TransferTokens))

	maxTokens := state.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	model := state.Model
	if opts.Model != "" {
		model = opts.Model
	}

	next := &SessionState{
		ID:          newID,
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    []Message{},
		CreatedAt:   now,
		RotatedFrom: id,
		Status:      SessionActive,
	}
	if seed != "" {
		next.Messages = append(next.Messages, Message{Role: "system", Content: seed, Timestamp: now})
		next.CurrentTokens = transfer.TransferTokens
	}
	s.sessions[newID] = next
	s.setBandLocked(newID, StatusHealthy)

	state.Status = SessionRotated
	state.RotatedTo = newID
	state.LastRotation = &now
	s.mu.Unlock()

	s.publish(id, events.EventContextRotated, map[string]any{
		"sessionId":      id,
		"newSessionId":   newID,
		"checkpointId":   checkpointID,
		"reason":         opts.Reason,
		"sourceTokens":   transfer.SourceTokens,
		"transferTokens": transfer.TransferTokens,
	})
	s.logger.Warn(ctx, "session rotated",
		"session_id", id, "new_session_id", newID, "reason", opts.Reason)

	return &RotationResult{
		NewSessionID: newID,
		CheckpointID: checkpointID,
		Transfer:     transfer,
		Reason:       opts.Reason,
		RotatedAt:    now,
	}, nil
}

// formatTransferMessage renders the transfer as the new session's system
// seed. Empty sections are omitted; an entirely empty transfer renders "".
func formatTransferMessage(t ContextTransfer) string {
	var sections []string

	if t.Summary != "" {
		sections = append(sections, "## Summary\n"+t.Summary)
	}
	if len(t.RecentMessages) > 0 {
		var b strings.Builder
		b.WriteString("## Recent Conversation")
		for _, m := range t.RecentMessages {
			b.WriteString("\n[")
			b.WriteString(m.Role)
			b.WriteString("] ")
			b.WriteString(m.Content)
		}
		sections = append(sections, b.String())
	}
	if len(t.ActiveBeads) > 0 {
		sections = append(sections, "## Active Work Items\n- "+strings.Join(t.ActiveBeads, "\n- "))
	}
	if len(t.MemoryRules) > 0 {
		sections = append(sections, "## Relevant Guidelines\n- "+strings.Join(t.MemoryRules, "\n- "))
	}
	return strings.Join(sections, "\n\n")
}

func lastN(messages []Message, n int) []Message {
	if len(messages) <= n {
		return append([]Message{}, messages...)
	}
	return append([]Message{}, messages[len(messages)-n:]...)
}

// StartMonitoring begins periodic health checks over all sessions. Stops
// when ctx is cancelled or StopMonitoring is called.
func (s *Service) StartMonitoring(ctx context.Context) {
	s.mu.Lock()
	if s.monitorStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.monitorStop = stop
	s.mu.Unlock()

	s.monitorWG.Add(1)
	go func() {
		defer s.monitorWG.Done()
		ticker := time.NewTicker(s.cfg.MonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				for _, id := range s.SessionIDs() {
					if _, err := s.CheckHealth(ctx, id); err != nil {
						var notFound *SessionNotFoundError
						if !errors.As(err, &notFound) {
							s.logger.Error(ctx, "periodic health check failed",
								"session_id", id, "error", err)
						}
					}
				}
			}
		}
	}()
}

// StopMonitoring stops the periodic checks and waits for the monitor
// goroutine to exit.
func (s *Service) StopMonitoring() {
	s.mu.Lock()
	stop := s.monitorStop
	s.monitorStop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	s.monitorWG.Wait()
}

// publish emits an event on both the system channel and the session's own
// channel.
func (s *Service) publish(sessionID, eventType string, payload map[string]any) {
	s.hub.Publish(events.SystemChannel(), eventType, payload, nil)
	s.hub.Publish(events.SessionChannel(sessionID), eventType, payload, nil)
}

func (s *Service) countIntervention(kind, result string) {
	if s.metrics != nil {
		s.metrics.ContextInterventions.WithLabelValues(kind, result).Inc()
	}
}

// setBandLocked moves a session's status-band gauge. Caller holds the lock.
func (s *Service) setBandLocked(id string, band HealthStatus) {
	prev, had := s.bands[id]
	if had && prev == band {
		return
	}
	s.bands[id] = band
	if s.metrics == nil {
		return
	}
	if had {
		s.metrics.ContextSessions.WithLabelValues(string(prev)).Dec()
	}
	s.metrics.ContextSessions.WithLabelValues(string(band)).Inc()
}

func (s *Service) clearBandLocked(id string) {
	prev, had := s.bands[id]
	if !had {
		return
	}
	delete(s.bands, id)
	if s.metrics != nil {
		s.metrics.ContextSessions.WithLabelValues(string(prev)).Dec()
	}
}

func copyState(state *SessionState) SessionState {
	out := *state
	out.Messages = append([]Message{}, state.Messages...)
	out.history = append([]TokenHistoryEntry{}, state.history...)
	return out
}

// TokenHistory returns a copy of the session's history series.
func (s *Service) TokenHistory(id string) ([]TokenHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[id]
	if !ok {
		return nil, &SessionNotFoundError{SessionID: id}
	}
	return append([]TokenHistoryEntry{}, state.history...), nil
}
