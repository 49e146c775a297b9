package terminal

import "sync"

// subscriberBuffer is the number of output chunks a subscriber may fall
// behind before it is dropped.
const subscriberBuffer = 256

// EndReason says why a Subscription's output channel was closed.
type EndReason string

const (
	// ReasonSuperseded: a newer bridge attached to a raw handle.
	ReasonSuperseded EndReason = "superseded"
	// ReasonExited: the backend process exited on its own.
	ReasonExited EndReason = "exited"
	// ReasonClosed: the handle was closed or its session killed.
	ReasonClosed EndReason = "closed"
	// ReasonDetached: the handle was detached or the manager stopped.
	ReasonDetached EndReason = "detached"
	// ReasonSlow: the subscriber did not keep up with the output stream.
	ReasonSlow EndReason = "slow_consumer"
	// ReasonCancelled: the subscriber itself called Close.
	ReasonCancelled EndReason = "cancelled"
)

// Subscription is one consumer of a handle's live output. The handle's
// pump delivers each output chunk on the channel returned by Output, in
// production order. Closing the channel is the only cancellation signal;
// once it is closed, Reason and Diagnostic describe why.
type Subscription struct {
	HandleID string

	ch       chan []byte
	release  func(*Subscription)
	mu       sync.Mutex
	closed   bool
	reason   EndReason
	diagnose string
}

func newSubscription(handleID string, release func(*Subscription)) *Subscription {
	return &Subscription{
		HandleID: handleID,
		ch:       make(chan []byte, subscriberBuffer),
		release:  release,
	}
}

// Output returns the channel of output chunks. Chunks are shared between
// subscribers and must not be modified.
func (s *Subscription) Output() <-chan []byte {
	return s.ch
}

// Reason reports why the subscription ended. It is empty while the
// subscription is live.
func (s *Subscription) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Diagnostic is a final human-readable message for the client, set when
// the backend exited on its own.
func (s *Subscription) Diagnostic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diagnose
}

// Close detaches the subscriber from its handle. The handle itself is not
// affected. Safe to call more than once.
func (s *Subscription) Close() {
	if s.release != nil {
		s.release(s)
	}
	s.end(ReasonCancelled, "")
}

// send delivers data without blocking. It returns false when the
// subscriber's buffer is full.
func (s *Subscription) send(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- data:
		return true
	default:
		return false
	}
}

func (s *Subscription) end(reason EndReason, diagnostic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	s.diagnose = diagnostic
	close(s.ch)
}
