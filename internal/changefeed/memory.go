package changefeed

import (
	"context"
	"time"
)

// Memory is an in-process feed. It only reaches subscribers in the same
// process, which is enough for a single API instance and for tests.
type Memory struct {
	hub *hub
	now func() time.Time
}

// NewMemory creates an empty in-process feed.
func NewMemory() *Memory {
	return &Memory{hub: newHub(), now: time.Now}
}

// Publish wakes every listener of topic without blocking.
func (m *Memory) Publish(ctx context.Context, topic string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.hub.isClosed() {
		return ErrClosed
	}
	m.hub.dispatch(Event{Topic: topic, At: m.now()})
	return nil
}

// Subscribe registers a listener that lives until Close or ctx is done.
func (m *Memory) Subscribe(ctx context.Context, topic string) (*Listener, error) {
	return m.hub.add(ctx, topic)
}

// Listeners returns the number of open listeners.
func (m *Memory) Listeners() int {
	return m.hub.count()
}

// Close closes every listener.
func (m *Memory) Close() error {
	m.hub.closeAll()
	return nil
}
