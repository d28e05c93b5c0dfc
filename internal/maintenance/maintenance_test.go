package maintenance

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsgate/internal/observability"
)

func newTestCoordinator() *Coordinator {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	return NewCoordinator(logger, nil)
}

func TestInitialState(t *testing.T) {
	c := newTestCoordinator()
	state := c.GetState()
	assert.Equal(t, ModeRunning, state.Mode)
	assert.Nil(t, state.StartedAt)
	assert.Nil(t, state.RetryAfterSeconds)
	assert.True(t, c.Admits())
}

func TestEnterAndExitMaintenance(t *testing.T) {
	c := newTestCoordinator()

	state := c.EnterMaintenance(Options{Reason: "  manifest migration  ", Actor: "ops"})
	assert.Equal(t, ModeMaintenance, state.Mode)
	assert.Equal(t, "manifest migration", state.Reason)
	assert.Equal(t, "ops", state.UpdatedBy)
	require.NotNil(t, state.StartedAt)
	assert.Nil(t, state.DeadlineAt)
	assert.Nil(t, state.RetryAfterSeconds)
	assert.False(t, c.Admits())

	state = c.ExitMaintenance(Options{Actor: "ops"})
	assert.Equal(t, ModeRunning, state.Mode)
	assert.Empty(t, state.Reason)
	assert.True(t, c.Admits())
}

func TestStartDrainingRequiresDeadline(t *testing.T) {
	c := newTestCoordinator()
	_, err := c.StartDraining(Options{Reason: "shutdown"})
	assert.ErrorIs(t, err, ErrDeadlineRequired)
	assert.Equal(t, ModeRunning, c.GetState().Mode)
}

func TestStartDrainingRetryAfter(t *testing.T) {
	c := newTestCoordinator()
	state, err := c.StartDraining(Options{DeadlineSeconds: 30, Reason: "deploy", Actor: "ops"})
	require.NoError(t, err)

	assert.Equal(t, ModeDraining, state.Mode)
	require.NotNil(t, state.DeadlineAt)
	require.NotNil(t, state.RetryAfterSeconds)
	assert.InDelta(t, 30, *state.RetryAfterSeconds, 1)
	assert.False(t, c.Admits())
}

func TestRetryAfterFloorsAtZero(t *testing.T) {
	c := newTestCoordinator()
	_, err := c.StartDraining(Options{DeadlineSeconds: 1})
	require.NoError(t, err)

	c.mu.Lock()
	past := time.Now().Add(-time.Minute)
	c.deadlineAt = &past
	c.mu.Unlock()

	state := c.GetState()
	require.NotNil(t, state.RetryAfterSeconds)
	assert.Equal(t, int64(0), *state.RetryAfterSeconds)
}

func TestReasonTruncated(t *testing.T) {
	c := newTestCoordinator()
	state := c.EnterMaintenance(Options{Reason: strings.Repeat("r", 600)})
	assert.Len(t, state.Reason, 500)
}

func TestInFlightCounter(t *testing.T) {
	c := newTestCoordinator()

	c.RequestStarted()
	c.RequestStarted()
	assert.Equal(t, int64(2), c.InFlight())

	c.RequestFinished()
	assert.Equal(t, int64(1), c.InFlight())
	assert.Equal(t, int64(1), c.GetState().InFlight)
}

func TestInFlightClampsAtZero(t *testing.T) {
	c := newTestCoordinator()
	c.RequestFinished()
	c.RequestFinished()
	assert.Equal(t, int64(0), c.InFlight())
}
