package notify

import (
	"log/slog"
	"sync"
)

// Lifecycle event names emitted during a sync session.
const (
	EventStarted   = "sync:started"
	EventProgress  = "sync:progress"
	EventCompleted = "sync:completed"
	EventFailed    = "sync:failed"
)

// Notifier publishes lifecycle events toward a user's devices. Delivery
// is fire-and-forget: a lost notification never fails a sync session.
type Notifier interface {
	EmitToUser(userID, event string, payload any)
}

// LogNotifier writes events to the log. Used when no transport is wired.
type LogNotifier struct{}

// EmitToUser implements Notifier.
func (LogNotifier) EmitToUser(userID, event string, payload any) {
	slog.Debug("notify", "user", userID, "event", event)
}

// Event is one published notification.
type Event struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Hub is an in-process fan-out Notifier. Subscribers get buffered
// channels; events to a full channel are dropped rather than blocking
// the sync session.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan Event
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a listener for one user's events. The returned
// cancel func closes the channel and removes the subscription.
func (h *Hub) Subscribe(userID string, buffer int) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, buffer)
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan Event)
	}
	id := h.next
	h.next++
	h.subs[userID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[userID][id]; ok {
			delete(h.subs[userID], id)
			close(sub)
		}
	}
	return ch, cancel
}

// EmitToUser implements Notifier.
func (h *Hub) EmitToUser(userID, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[userID] {
		select {
		case ch <- Event{UserID: userID, Name: event, Payload: payload}:
		default:
			slog.Debug("notify: subscriber buffer full, event dropped", "user", userID, "event", event)
		}
	}
}

// Multi fans one emit out to several notifiers.
type Multi []Notifier

// EmitToUser implements Notifier.
func (m Multi) EmitToUser(userID, event string, payload any) {
	for _, n := range m {
		n.EmitToUser(userID, event, payload)
	}
}
