package docstore

import "sync"

// Subscription is a live feed over a collection. Snapshots and errors are
// delivered on the returned channels until Detach is called; after Detach
// returns, no further delivery happens and both channels are closed.
type Subscription struct {
	snapshots chan []Document
	errs      chan error

	mu       sync.Mutex
	detached bool
	onDetach func()
}

// NewSubscription constructs a subscription whose teardown runs onDetach
// exactly once. Store implementations deliver through Deliver/DeliverError.
func NewSubscription(buffer int, onDetach func()) *Subscription {
	return &Subscription{
		snapshots: make(chan []Document, buffer),
		errs:      make(chan error, buffer),
		onDetach:  onDetach,
	}
}

// Snapshots returns the channel carrying whole-set snapshots.
func (s *Subscription) Snapshots() <-chan []Document {
	return s.snapshots
}

// Errs returns the channel carrying feed errors. An error does not terminate
// the feed; delivery resumes with the next successful snapshot.
func (s *Subscription) Errs() <-chan error {
	return s.errs
}

// Detach stops delivery and releases the underlying feed. It is safe to call
// more than once. No snapshot or error is delivered after Detach returns.
func (s *Subscription) Detach() {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return
	}
	s.detached = true
	fn := s.onDetach
	s.mu.Unlock()

	if fn != nil {
		fn()
	}

	s.mu.Lock()
	close(s.snapshots)
	close(s.errs)
	s.mu.Unlock()
}

// Deliver pushes a snapshot unless the subscription has been detached. When
// the subscriber is not keeping up the oldest queued snapshot is dropped:
// snapshots are whole sets, so only the latest one matters.
func (s *Subscription) Deliver(docs []Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detached {
		return false
	}

	for {
		select {
		case s.snapshots <- docs:
			return true
		default:
			select {
			case <-s.snapshots:
			default:
			}
		}
	}
}

// DeliverError pushes a feed error unless the subscription has been detached.
func (s *Subscription) DeliverError(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.detached {
		return false
	}

	select {
	case s.errs <- err:
		return true
	default:
		return false
	}
}
