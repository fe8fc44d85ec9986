package tasksrepo

import (
	"slices"
	"sync"
)

// Feed is a live feed of one user's complete task set. Each delivery
// supersedes the previous one wholesale; consumers replace, never patch.
type Feed struct {
	snapshots chan []Task
	errs      chan error

	detachOnce sync.Once
	onDetach   func()

	mu     sync.Mutex
	closed bool
}

// NewFeed constructs a feed whose Detach runs onDetach exactly once. Store
// implementations publish into it from their conversion goroutine.
func NewFeed(onDetach func()) *Feed {
	return &Feed{
		snapshots: make(chan []Task, 8),
		errs:      make(chan error, 8),
		onDetach:  onDetach,
	}
}

// Snapshots returns the channel carrying whole-set snapshots, newest task
// first.
func (f *Feed) Snapshots() <-chan []Task {
	return f.snapshots
}

// Errs returns the channel carrying feed errors. Errors are advisory; the
// feed keeps delivering after one.
func (f *Feed) Errs() <-chan error {
	return f.errs
}

// Detach stops delivery and releases the underlying subscription. Safe to
// call more than once.
func (f *Feed) Detach() {
	f.detachOnce.Do(func() {
		if f.onDetach != nil {
			f.onDetach()
		}
	})
}

// Publish delivers a snapshot, dropping the oldest queued one when the
// consumer is behind. It is a no-op after Close.
func (f *Feed) Publish(tasks []Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	for {
		select {
		case f.snapshots <- tasks:
			return
		default:
			select {
			case <-f.snapshots:
			default:
			}
		}
	}
}

// PublishError delivers a feed error. It is a no-op after Close.
func (f *Feed) PublishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	select {
	case f.errs <- err:
	default:
	}
}

// Close terminates delivery. Called by the publishing side once the
// underlying subscription has stopped.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.snapshots)
	close(f.errs)
}

// SortByCreatedDesc orders tasks newest first, breaking creation-time ties
// by id so the order is deterministic.
func SortByCreatedDesc(tasks []Task) {
	slices.SortFunc(tasks, func(a, b Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
