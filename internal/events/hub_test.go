package events

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/opsgate/internal/observability"
)

// collector gathers delivered events for assertions.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) cb(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := c.snapshot(); len(evs) >= n {
			return evs
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(c.snapshot()))
	return nil
}

func TestHubDeliversInPublicationOrder(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	defer hub.Close()

	var c collector
	cancel := hub.Subscribe(SystemChannel(), 0, c.cb)
	defer cancel()

	hub.Publish(SystemChannel(), "first", 1, nil)
	hub.Publish(SystemChannel(), "second", 2, nil)
	hub.Publish(SystemChannel(), "third", 3, nil)

	evs := c.waitFor(t, 3)
	assert.Equal(t, "first", evs[0].Type)
	assert.Equal(t, "second", evs[1].Type)
	assert.Equal(t, "third", evs[2].Type)
}

func TestHubReplayForLateJoiner(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	defer hub.Close()

	ch := SessionChannel("s1")
	for i := 0; i < 5; i++ {
		hub.Publish(ch, "tick", i, nil)
	}

	var c collector
	cancel := hub.Subscribe(ch, 3, c.cb)
	defer cancel()

	evs := c.waitFor(t, 3)
	// Replay is the most recent 3, in order.
	assert.Equal(t, 2, evs[0].Payload)
	assert.Equal(t, 3, evs[1].Payload)
	assert.Equal(t, 4, evs[2].Payload)
}

func TestHubChannelIsolation(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	defer hub.Close()

	var sys, ses collector
	cancelSys := hub.Subscribe(SystemChannel(), 0, sys.cb)
	defer cancelSys()
	cancelSes := hub.Subscribe(SessionChannel("a"), 0, ses.cb)
	defer cancelSes()

	hub.Publish(SessionChannel("a"), "scoped", nil, nil)
	hub.Publish(SessionChannel("b"), "other", nil, nil)

	evs := ses.waitFor(t, 1)
	assert.Equal(t, "scoped", evs[0].Type)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, sys.snapshot())
}

func TestHubSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	cfg := DefaultHubConfig()
	cfg.SubscriberQueue = 1
	hub := NewHub(cfg)
	defer hub.Close()

	block := make(chan struct{})
	release := sync.OnceFunc(func() { close(block) })
	defer release()

	cancel := hub.Subscribe(SystemChannel(), 0, func(Event) { <-block })
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish(SystemChannel(), "flood", i, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	_, dropped := hub.Stats()
	assert.Positive(t, dropped)
}

func TestHubCountsPublishesAndDrops(t *testing.T) {
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	cfg := DefaultHubConfig()
	cfg.SubscriberQueue = 1
	cfg.Metrics = metrics
	hub := NewHub(cfg)
	defer hub.Close()

	block := make(chan struct{})
	release := sync.OnceFunc(func() { close(block) })
	defer release()

	cancel := hub.Subscribe(SystemChannel(), 0, func(Event) { <-block })
	defer cancel()

	for i := 0; i < 10; i++ {
		hub.Publish(SystemChannel(), "flood", i, nil)
	}

	published, dropped := hub.Stats()
	assert.Equal(t, published,
		int64(testutil.ToFloat64(metrics.HubPublished.WithLabelValues("system"))))
	assert.Equal(t, dropped,
		int64(testutil.ToFloat64(metrics.HubDropped.WithLabelValues("system"))))
	assert.Positive(t, dropped)
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	defer hub.Close()

	var c collector
	cancel := hub.Subscribe(SystemChannel(), 0, c.cb)
	cancel()
	cancel()

	hub.Publish(SystemChannel(), "after", nil, nil)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestHubBacklogQuery(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	defer hub.Close()

	hub.Publish(RegistryChannel(), EventRegistryLoaded, "manifest", nil)
	hub.Publish(RegistryChannel(), EventRegistryInvalidated, nil, nil)

	backlog := hub.Backlog(RegistryChannel(), 10)
	require.Len(t, backlog, 2)
	assert.Equal(t, EventRegistryLoaded, backlog[0].Type)
	assert.Equal(t, EventRegistryInvalidated, backlog[1].Type)
}

func TestHubPublishAfterCloseIsNoop(t *testing.T) {
	hub := NewHub(DefaultHubConfig())
	hub.Close()
	hub.Publish(SystemChannel(), "late", nil, nil)

	published, _ := hub.Stats()
	assert.Equal(t, int64(0), published)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	// Must not panic; exists so call sites never branch on a missing hub.
	p.Publish(SystemChannel(), "ignored", nil, nil)
}
