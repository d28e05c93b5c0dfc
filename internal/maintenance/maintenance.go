// Package maintenance holds the process-wide admission state: running,
// maintenance, or draining with a deadline. The gateway consults it before
// admitting requests and advertises retry-after hints while drained.
package maintenance

import (
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/opsgate/internal/observability"
)

// Mode is the process admission mode.
type Mode string

const (
	ModeRunning     Mode = "running"
	ModeMaintenance Mode = "maintenance"
	ModeDraining    Mode = "draining"
)

// maxReasonLen bounds operator-supplied reasons.
const maxReasonLen = 500

// ErrDeadlineRequired is returned when draining is requested without a
// deadline.
var ErrDeadlineRequired = errors.New("draining requires a deadline")

// State is a point-in-time view of the coordinator.
type State struct {
	Mode       Mode       `json:"mode"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	DeadlineAt *time.Time `json:"deadlineAt,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	UpdatedBy  string     `json:"updatedBy,omitempty"`
	InFlight   int64      `json:"inFlight"`

	// RetryAfterSeconds is set only while draining: seconds until the
	// deadline, floored at zero once it has passed.
	RetryAfterSeconds *int64 `json:"retryAfterSeconds,omitempty"`
}

// Options carries the operator inputs for a mode change.
type Options struct {
	Reason string
	Actor  string

	// DeadlineSeconds is required by StartDraining and ignored elsewhere.
	DeadlineSeconds int
}

// Coordinator is the process-local maintenance state machine.
type Coordinator struct {
	logger  *observability.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	mode       Mode
	startedAt  *time.Time
	deadlineAt *time.Time
	reason     string
	updatedAt  time.Time
	updatedBy  string
	inFlight   int64
}

// NewCoordinator creates a coordinator in running mode. Metrics may be nil.
func NewCoordinator(logger *observability.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		logger:    logger,
		metrics:   metrics,
		mode:      ModeRunning,
		updatedAt: time.Now(),
	}
}

func sanitizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	return reason
}

// EnterMaintenance switches to maintenance mode. No deadline; requests are
// rejected until ExitMaintenance.
func (c *Coordinator) EnterMaintenance(opts Options) State {
	c.mu.Lock()
	now := time.Now()
	c.mode = ModeMaintenance
	c.startedAt = &now
	c.deadlineAt = nil
	c.reason = sanitizeReason(opts.Reason)
	c.updatedAt = now
	c.updatedBy = opts.Actor
	state := c.stateLocked(now)
	c.mu.Unlock()

	c.logger.Warn(nil, "entering maintenance mode", "actor", opts.Actor, "reason", state.Reason)
	return state
}

// StartDraining switches to draining mode with a hard deadline.
func (c *Coordinator) StartDraining(opts Options) (State, error) {
	if opts.DeadlineSeconds <= 0 {
		return State{}, ErrDeadlineRequired
	}

	c.mu.Lock()
	now := time.Now()
	deadline := now.Add(time.Duration(opts.DeadlineSeconds) * time.Second)
	c.mode = ModeDraining
	c.startedAt = &now
	c.deadlineAt = &deadline
	c.reason = sanitizeReason(opts.Reason)
	c.updatedAt = now
	c.updatedBy = opts.Actor
	state := c.stateLocked(now)
	c.mu.Unlock()

	c.logger.Warn(nil, "draining started",
		"actor", opts.Actor, "deadline_seconds", opts.DeadlineSeconds, "reason", state.Reason)
	return state, nil
}

// ExitMaintenance returns to running mode.
func (c *Coordinator) ExitMaintenance(opts Options) State {
	c.mu.Lock()
	now := time.Now()
	c.mode = ModeRunning
	c.startedAt = nil
	c.deadlineAt = nil
	c.reason = ""
	c.updatedAt = now
	c.updatedBy = opts.Actor
	state := c.stateLocked(now)
	c.mu.Unlock()

	c.logger.Info(nil, "maintenance exited", "actor", opts.Actor)
	return state
}

// GetState returns the current state with a live retry-after hint.
func (c *Coordinator) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(time.Now())
}

func (c *Coordinator) stateLocked(now time.Time) State {
	state := State{
		Mode:       c.mode,
		StartedAt:  c.startedAt,
		DeadlineAt: c.deadlineAt,
		Reason:     c.reason,
		UpdatedAt:  c.updatedAt,
		UpdatedBy:  c.updatedBy,
		InFlight:   c.inFlight,
	}
	if c.mode == ModeDraining && c.deadlineAt != nil {
		secs := int64(math.Ceil(c.deadlineAt.Sub(now).Seconds()))
		if secs < 0 {
			secs = 0
		}
		state.RetryAfterSeconds = &secs
	}
	return state
}

// Admits reports whether new requests should be accepted.
func (c *Coordinator) Admits() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == ModeRunning
}

// RequestStarted increments the in-flight counter.
func (c *Coordinator) RequestStarted() {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.InFlightRequests.Inc()
	}
}

// RequestFinished decrements the in-flight counter, clamping at zero.
func (c *Coordinator) RequestFinished() {
	c.mu.Lock()
	c.inFlight--
	clamped := false
	if c.inFlight < 0 {
		c.inFlight = 0
		clamped = true
	}
	c.mu.Unlock()

	if clamped {
		c.logger.Warn(nil, "in-flight counter went negative, clamping to zero")
		return
	}
	if c.metrics != nil {
		c.metrics.InFlightRequests.Dec()
	}
}

// InFlight returns the current in-flight request count.
func (c *Coordinator) InFlight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}
