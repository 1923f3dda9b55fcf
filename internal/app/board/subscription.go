package board

import "context"

// Subscription is a live view started by SubscribeToVenue or
// SubscribeToRequests. Its callback runs on one goroutine, never concurrently
// with itself.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops the subscription and waits for its goroutine to exit; no
// callback starts after Close returns. Calling Close from inside the callback
// deadlocks, so cancel the subscribe context there instead.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has stopped, either through Close,
// cancellation of the subscribe context, or the change feed shutting down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
