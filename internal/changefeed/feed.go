// Package changefeed wakes subscribers when a venue document or its request
// collection changes. Events carry no payload beyond the topic; subscribers
// re-read the store.
package changefeed

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Subscribe and Publish after Close.
var ErrClosed = errors.New("change feed closed")

// Event announces that something under Topic changed at At.
type Event struct {
	Topic string
	At    time.Time
}

// Feed publishes and delivers change notifications by topic.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (*Listener, error)
	Close() error
}

// VenueTopic is the topic of a venue's settings document.
func VenueTopic(venueID string) string {
	return "venues/" + venueID
}

// RequestsTopic is the topic of a venue's request collection.
func RequestsTopic(venueID string) string {
	return "venues/" + venueID + "/requests"
}

// Listener receives events for one topic. Its channel holds at most one
// undelivered event: bursts collapse into a single wake-up.
type Listener struct {
	topic string
	ch    chan Event
	once  sync.Once
	hub   *hub
	// stopCtx detaches the listener from its subscribe context; guarded by hub.mu.
	stopCtx func() bool
}

// C returns the event channel. It is closed when the listener is closed.
func (l *Listener) C() <-chan Event { return l.ch }

// Close unsubscribes the listener. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { l.hub.remove(l) })
}

// hub is the fan-out shared by every driver.
type hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Listener]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*Listener]struct{})}
}

func (h *hub) add(ctx context.Context, topic string) (*Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	l := &Listener{topic: topic, ch: make(chan Event, 1), hub: h}
	set := h.subs[topic]
	if set == nil {
		set = make(map[*Listener]struct{})
		h.subs[topic] = set
	}
	set[l] = struct{}{}

	l.stopCtx = context.AfterFunc(ctx, l.Close)
	return l, nil
}

// remove closes the channel under the lock so dispatch never sends on it.
func (h *hub) remove(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if l.stopCtx != nil {
		l.stopCtx()
	}
	set, ok := h.subs[l.topic]
	if !ok {
		return
	}
	if _, ok := set[l]; !ok {
		return
	}
	delete(set, l)
	if len(set) == 0 {
		delete(h.subs, l.topic)
	}
	close(l.ch)
}

func (h *hub) dispatch(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for l := range h.subs[e.Topic] {
		notify(l, e)
	}
}

// dispatchAll wakes every listener, used when a driver may have missed events.
func (h *hub) dispatchAll(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic, set := range h.subs {
		for l := range set {
			notify(l, Event{Topic: topic, At: at})
		}
	}
}

func notify(l *Listener, e Event) {
	select {
	case l.ch <- e:
	default:
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.subs {
		for l := range set {
			if l.stopCtx != nil {
				l.stopCtx()
			}
			close(l.ch)
		}
		delete(h.subs, topic)
	}
}

func (h *hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
