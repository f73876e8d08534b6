package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"grantchain/core/events"
	"grantchain/core/types"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// EventHub fans emitted events out to websocket subscribers. A subscriber
// that falls behind by more than its buffer loses events instead of blocking
// the state machine.
type EventHub struct {
	mu      sync.Mutex
	subs    map[*subscription]struct{}
	dropped uint64
}

type subscription struct {
	filter map[string]struct{}
	ch     chan types.Event
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[*subscription]struct{})}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if len(sub.filter) > 0 {
			if _, ok := sub.filter[payload.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- *payload:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a subscriber for the given event types (all when
// empty). cancel must be called to release it.
func (h *EventHub) Subscribe(eventTypes []string) (<-chan types.Event, func()) {
	sub := &subscription{filter: make(map[string]struct{}), ch: make(chan types.Event, subscriberBuffer)}
	for _, t := range eventTypes {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			sub.filter[trimmed] = struct{}{}
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (h *EventHub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// handleEventsWS streams events as JSON text frames. ?types=a,b filters by
// event type.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotImplemented, "event stream disabled")
		return
	}
	var filter []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		filter = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.hub.Subscribe(filter)
	defer cancel()
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates); err != nil {
		if websocket.CloseStatus(err) == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-updates:
			data, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
