package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/opsgate/internal/events"
)

const (
	wsWriteDeadline = 10 * time.Second
	maxReplay       = 256
)

// channelFromQuery resolves the requested hub channel. An absent type
// selects the system channel; "session" additionally needs an id.
func channelFromQuery(r *http.Request) (events.Channel, bool) {
	chType := r.URL.Query().Get("channel")
	id := r.URL.Query().Get("id")
	switch chType {
	case "", "system":
		return events.SystemChannel(), true
	case "session":
		if id == "" {
			return events.Channel{}, false
		}
		return events.SessionChannel(id), true
	case "registry":
		return events.RegistryChannel(), true
	case "snapshot":
		return events.SnapshotChannel(), true
	case "sweeps":
		return events.SweepChannel(), true
	}
	return events.Channel{}, false
}

// handleEvents bridges a hub subscription onto a websocket. Query params:
// channel (system|session|registry|snapshot|sweeps, default system),
// id (required for session), replay (backlog events to deliver first).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelFromQuery(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown or incomplete channel selector")
		return
	}

	replay := 0
	if raw := r.URL.Query().Get("replay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxReplay {
			s.writeError(w, http.StatusBadRequest, "replay must be an integer between 0 and "+strconv.Itoa(maxReplay))
			return
		}
		replay = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	s.logger.Debug(r.Context(), "websocket subscriber connected",
		"channel", ch.String(), "replay", replay)
	if s.metrics != nil {
		s.metrics.WSConnections.Inc()
		defer s.metrics.WSConnections.Dec()
	}

	// Callbacks run on the subscription's own goroutine, so writes to the
	// connection are already serialized.
	closed := make(chan struct{})
	cancel := s.hub.Subscribe(ch, replay, func(ev events.Event) {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		if err := conn.WriteJSON(ev); err != nil {
			select {
			case <-closed:
			default:
				close(closed)
			}
		}
	})
	defer cancel()
	defer conn.Close()

	// Drain the read side to notice client closes; we never expect inbound
	// frames beyond control messages.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-readDone:
	case <-closed:
	case <-r.Context().Done():
	}

	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
