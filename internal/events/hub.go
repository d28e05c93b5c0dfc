package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/opsgate/internal/observability"
)

// Channel addresses a pub/sub stream. Equality is by Type plus ID; the ID is
// empty for system-wide channels (for example {Type: "system"}) and set for
// scoped ones (for example {Type: "session", ID: "abc"}).
type Channel struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// String renders the channel as "type" or "type:id".
func (c Channel) String() string {
	if c.ID == "" {
		return c.Type
	}
	return c.Type + ":" + c.ID
}

// Event is a published hub event.
type Event struct {
	ID          string            `json:"id"`
	Channel     Channel           `json:"channel"`
	Type        string            `json:"type"`
	Payload     any               `json:"payload"`
	Meta        map[string]string `json:"meta,omitempty"`
	PublishedAt time.Time         `json:"publishedAt"`
}

// Publisher is the narrow interface components hold for emitting events.
// A NopPublisher is installed wherever a hub has not been wired, so call
// sites never need nil checks or swallowed errors.
type Publisher interface {
	Publish(ch Channel, eventType string, payload any, meta map[string]string)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(Channel, string, any, map[string]string) {}

// Subscriber receives events for one subscription. Callbacks run on a
// dedicated goroutine per subscription, in per-channel publication order.
type Subscriber func(Event)

// HubConfig configures per-channel backlog retention.
type HubConfig struct {
	// BacklogSize is the per-channel ring capacity for replay. Minimum 1.
	BacklogSize int

	// BacklogTTL bounds how long backlog events stay replayable. Zero keeps
	// them until capacity eviction.
	BacklogTTL time.Duration

	// SubscriberQueue is the per-subscriber delivery queue depth. When a
	// subscriber falls this far behind, further events for it are dropped
	// and counted. Minimum 1.
	SubscriberQueue int

	// Logger receives debug logs for drops and subscription churn.
	Logger *slog.Logger

	// Metrics receives publish and drop counters, labelled by channel type.
	// Optional; counting still happens in Stats without it.
	Metrics *observability.Metrics
}

// DefaultHubConfig returns the retention defaults used by the gateway.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BacklogSize:     256,
		BacklogTTL:      10 * time.Minute,
		SubscriberQueue: 64,
	}
}

// Hub is a channel-addressed multi-subscriber pub/sub fan-out. Publication
// never blocks and never fails from the caller's perspective: slow
// subscribers are skipped (offer-then-drop) and the drop is counted.
type Hub struct {
	cfg     HubConfig
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	channels map[Channel]*hubChannel
	closed   bool

	published atomic.Int64
	dropped   atomic.Int64
}

type hubChannel struct {
	backlog *Ring[Event]
	subs    map[int64]*subscription
}

type subscription struct {
	id     int64
	queue  chan Event
	done   chan struct{}
	cancel sync.Once
}

var subscriptionIDs atomic.Int64

// NewHub creates a hub with the given retention configuration.
func NewHub(cfg HubConfig) *Hub {
	if cfg.BacklogSize < 1 {
		cfg.BacklogSize = DefaultHubConfig().BacklogSize
	}
	if cfg.SubscriberQueue < 1 {
		cfg.SubscriberQueue = DefaultHubConfig().SubscriberQueue
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		metrics:  cfg.Metrics,
		channels: make(map[Channel]*hubChannel),
	}
}

// Publish appends the event to the channel backlog and offers it to every
// current subscriber of that channel.
func (h *Hub) Publish(ch Channel, eventType string, payload any, meta map[string]string) {
	ev := Event{
		ID:          uuid.NewString(),
		Channel:     ch,
		Type:        eventType,
		Payload:     payload,
		Meta:        meta,
		PublishedAt: time.Now(),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	hc := h.channel(ch)
	hc.backlog.Push(ev)
	subs := make([]*subscription, 0, len(hc.subs))
	for _, s := range hc.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	h.published.Add(1)
	if h.metrics != nil {
		h.metrics.HubPublished.WithLabelValues(ch.Type).Inc()
	}
	for _, s := range subs {
		select {
		case s.queue <- ev:
		default:
			h.dropped.Add(1)
			if h.metrics != nil {
				h.metrics.HubDropped.WithLabelValues(ch.Type).Inc()
			}
			h.logger.Debug("hub: dropped event for slow subscriber",
				"channel", ch.String(), "event_type", eventType)
		}
	}
}

// Subscribe registers a callback on a channel. Up to replay recent backlog
// events are delivered first, in order, then live events. The returned
// function removes the subscription; calling it more than once is harmless.
func (h *Hub) Subscribe(ch Channel, replay int, cb Subscriber) (cancel func()) {
	sub := &subscription{
		id:    subscriptionIDs.Add(1),
		queue: make(chan Event, h.cfg.SubscriberQueue+replay),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	hc := h.channel(ch)
	if replay > 0 {
		backlog := hc.backlog.Values()
		if len(backlog) > replay {
			backlog = backlog[len(backlog)-replay:]
		}
		for _, ev := range backlog {
			// Queue is sized to hold the full replay, so this never drops.
			select {
			case sub.queue <- ev:
			default:
			}
		}
	}
	hc.subs[sub.id] = sub
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-sub.done:
				return
			case ev := <-sub.queue:
				cb(ev)
			}
		}
	}()

	return func() {
		h.mu.Lock()
		if c, ok := h.channels[ch]; ok {
			delete(c.subs, sub.id)
		}
		h.mu.Unlock()
		sub.cancel.Do(func() { close(sub.done) })
	}
}

// Backlog returns up to n recent events from a channel, oldest first.
func (h *Hub) Backlog(ch Channel, n int) []Event {
	h.mu.RLock()
	hc, ok := h.channels[ch]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	values := hc.backlog.Values()
	if n > 0 && len(values) > n {
		values = values[len(values)-n:]
	}
	return values
}

// PruneBacklogs applies TTL pruning across all channel backlogs and returns
// the total number of expired events. Driven by the sweep scheduler.
func (h *Hub) PruneBacklogs() int {
	h.mu.RLock()
	rings := make([]*Ring[Event], 0, len(h.channels))
	for _, hc := range h.channels {
		rings = append(rings, hc.backlog)
	}
	h.mu.RUnlock()

	total := 0
	for _, r := range rings {
		total += r.Prune()
	}
	return total
}

// Stats reports hub-wide publish and drop counts.
func (h *Hub) Stats() (published, dropped int64) {
	return h.published.Load(), h.dropped.Load()
}

// Close stops delivery to all subscribers and rejects further publishes.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscription, 0)
	for _, hc := range h.channels {
		for _, s := range hc.subs {
			subs = append(subs, s)
		}
		hc.subs = map[int64]*subscription{}
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.cancel.Do(func() { close(s.done) })
	}
}

// channel returns the state for ch, creating it on first use. Caller holds mu.
func (h *Hub) channel(ch Channel) *hubChannel {
	hc, ok := h.channels[ch]
	if !ok {
		hc = &hubChannel{
			backlog: NewRing[Event](RingConfig{Capacity: h.cfg.BacklogSize, TTL: h.cfg.BacklogTTL}),
			subs:    map[int64]*subscription{},
		}
		h.channels[ch] = hc
	}
	return hc
}
