// Package tasksession maintains the live per-user view of the task list. A
// session subscribes to the user's tasks, mirrors every snapshot into local
// state, coordinates due-date reminders with mutations, and surfaces backend
// failures as short-lived error messages.
package tasksession

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jrazmi/taskdeck/bridge/scaffolding/errs"
	"github.com/jrazmi/taskdeck/core/reminders"
	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// errorDisplayDuration is how long a backend error message stays visible
// before it clears on its own.
const errorDisplayDuration = 5 * time.Second

// State is a point-in-time copy of the session's view. Tasks is sorted by
// creation time descending and is safe for the caller to retain.
type State struct {
	Tasks   []tasksrepo.Task `json:"tasks"`
	Loading bool             `json:"loading"`
	Err     string           `json:"error,omitempty"`
}

// Session is the live view of one user's task list. It is connected to a
// feed for its entire lifetime; Close detaches it.
type Session struct {
	log       *logger.Logger
	userID    string
	repo      *tasksrepo.Repository
	scheduler *reminders.Scheduler
	feed      *tasksrepo.Feed

	mu      sync.Mutex
	tasks   []tasksrepo.Task
	index   map[string]tasksrepo.Task
	loading bool
	errMsg  string
	errSeq  int
	seeded  bool
	closed  bool

	watchers      map[int]chan State
	notifWatchers map[int]chan reminders.Notification
	nextWatcher   int
	done          chan struct{}
}

// Open subscribes to the user's tasks and starts mirroring snapshots into
// session state. The session starts in the loading state until the first
// snapshot lands.
func Open(ctx context.Context, log *logger.Logger, repo *tasksrepo.Repository, scheduler *reminders.Scheduler, userID string) (*Session, error) {
	feed, err := repo.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		log:           log,
		userID:        userID,
		repo:          repo,
		scheduler:     scheduler,
		feed:          feed,
		index:         make(map[string]tasksrepo.Task),
		loading:       true,
		watchers:      make(map[int]chan State),
		notifWatchers: make(map[int]chan reminders.Notification),
		done:          make(chan struct{}),
	}

	go s.run()

	return s, nil
}

// UserID returns the user this session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Watch streams state changes as they happen, starting with the current
// state. When the consumer falls behind, older states are dropped in favor
// of newer ones. The channel is closed when the session closes or the
// returned cancel function runs.
func (s *Session) Watch() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 8)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = ch
	ch <- s.stateLocked()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
	}

	return ch, cancel
}

// WatchNotifications streams reminder and completion notifications for this
// session's user. Delivery is best effort with the same drop-oldest policy as
// Watch. The channel is closed when the session closes or the cancel function
// runs.
func (s *Session) WatchNotifications() (<-chan reminders.Notification, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan reminders.Notification, 8)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	s.nextWatcher++
	id := s.nextWatcher
	s.notifWatchers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.notifWatchers[id]; ok {
			delete(s.notifWatchers, id)
			close(w)
		}
	}

	return ch, cancel
}

// Notify hands a fired notification to every notification watcher. Called by
// the session manager when the scheduler delivers for this session's user.
func (s *Session) Notify(n reminders.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, w := range s.notifWatchers {
		for {
			select {
			case w <- n:
			default:
				select {
				case <-w:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close detaches the feed, cancels the reminders for every task the session
// knows about, and stops the mirror goroutine. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	known := make([]string, 0, len(s.index))
	for id := range s.index {
		known = append(known, id)
	}
	s.mu.Unlock()

	for _, id := range known {
		s.scheduler.CancelAll(id)
	}

	s.feed.Detach()
	<-s.done
}

// Add validates and creates a task. A created task with a due date gets its
// reminder set immediately rather than waiting for the snapshot.
func (s *Session) Add(ctx context.Context, ct tasksrepo.CreateTask) (string, error) {
	id, err := s.repo.Create(ctx, s.userID, ct)
	if err != nil {
		s.setError(err)
		return "", err
	}

	if ct.DueDate != nil {
		s.scheduler.ScheduleAll(tasksrepo.Task{
			ID:      id,
			Title:   ct.Title,
			DueDate: ct.DueDate,
			UserID:  s.userID,
		})
	}

	return id, nil
}

// Update applies a partial update to a task in this session. Reminders are
// rebuilt from the task's new shape, and completing a task fires an
// immediate completion notification.
func (s *Session) Update(ctx context.Context, taskID string, ut tasksrepo.UpdateTask) error {
	s.mu.Lock()
	oldTask, known := s.index[taskID]
	s.mu.Unlock()
	if !known {
		return errs.New(errs.NotFound, errors.New("task not found"))
	}

	if err := s.repo.Update(ctx, taskID, ut); err != nil {
		s.setError(err)
		return err
	}

	newTask := applyUpdate(oldTask, ut)
	s.scheduler.Reschedule(oldTask, newTask)
	if !oldTask.Completed && newTask.Completed {
		s.scheduler.NotifyCompleted(newTask)
	}

	return nil
}

// ToggleComplete flips a task's completed flag. The task must be present in
// the session's current view.
func (s *Session) ToggleComplete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	task, known := s.index[taskID]
	s.mu.Unlock()
	if !known {
		return errs.New(errs.NotFound, errors.New("task not found"))
	}

	completed := !task.Completed
	return s.Update(ctx, taskID, tasksrepo.UpdateTask{Completed: &completed})
}

// Delete removes a task and cancels its pending reminders.
func (s *Session) Delete(ctx context.Context, taskID string) error {
	if err := s.repo.Delete(ctx, taskID); err != nil {
		s.setError(err)
		return err
	}

	s.scheduler.CancelAll(taskID)
	return nil
}

// Refresh fetches the task list directly instead of waiting for the next
// snapshot. Useful after a feed error left the view stale.
func (s *Session) Refresh(ctx context.Context) error {
	tasks, err := s.repo.GetAll(ctx, s.userID)
	if err != nil {
		s.setError(err)
		return err
	}

	s.applySnapshot(tasks)
	return nil
}

// run mirrors the feed into session state until both feed channels close.
func (s *Session) run() {
	defer close(s.done)
	defer func() {
		s.mu.Lock()
		for id, w := range s.watchers {
			delete(s.watchers, id)
			close(w)
		}
		for id, w := range s.notifWatchers {
			delete(s.notifWatchers, id)
			close(w)
		}
		s.mu.Unlock()
	}()

	snapshots := s.feed.Snapshots()
	errCh := s.feed.Errs()
	for snapshots != nil || errCh != nil {
		select {
		case tasks, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			s.applySnapshot(tasks)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			// The previous snapshot stays visible; only the error banner
			// changes.
			s.log.Warn("task feed error", "user_id", s.userID, "error", err)
			s.setError(err)
		}
	}
}

// applySnapshot replaces the session's view wholesale with a fresh snapshot
// and clears any lingering error. The first snapshot also seeds reminders
// for tasks that were due-dated before this session existed.
func (s *Session) applySnapshot(tasks []tasksrepo.Task) {
	s.mu.Lock()
	s.tasks = tasks
	s.index = make(map[string]tasksrepo.Task, len(tasks))
	for _, t := range tasks {
		s.index[t.ID] = t
	}
	s.loading = false
	s.errMsg = ""
	s.errSeq++
	seed := !s.seeded
	s.seeded = true
	s.publishLocked(s.stateLocked())
	s.mu.Unlock()

	if seed {
		for _, t := range tasks {
			s.scheduler.ScheduleAll(t)
		}
	}
}

// setError surfaces an error message for a bounded time, then clears it
// unless a newer error or snapshot got there first.
func (s *Session) setError(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.errMsg = err.Error()
	s.errSeq++
	seq := s.errSeq
	s.publishLocked(s.stateLocked())
	s.mu.Unlock()

	time.AfterFunc(errorDisplayDuration, func() {
		s.clearError(seq)
	})
}

func (s *Session) clearError(seq int) {
	s.mu.Lock()
	if s.closed || s.errSeq != seq || s.errMsg == "" {
		s.mu.Unlock()
		return
	}
	s.errMsg = ""
	s.publishLocked(s.stateLocked())
	s.mu.Unlock()
}

// stateLocked must be called with mu held.
func (s *Session) stateLocked() State {
	return State{
		Tasks:   slices.Clone(s.tasks),
		Loading: s.loading,
		Err:     s.errMsg,
	}
}

// publishLocked pushes a state to every watcher, dropping the oldest queued
// state on channels whose consumer is behind. It never blocks, so it is
// safe to call with mu held.
func (s *Session) publishLocked(st State) {
	for _, w := range s.watchers {
		for {
			select {
			case w <- st:
			default:
				select {
				case <-w:
				default:
				}
				continue
			}
			break
		}
	}
}

// applyUpdate computes the task's shape after an update, for reminder
// bookkeeping. The authoritative version still arrives via snapshot.
func applyUpdate(t tasksrepo.Task, ut tasksrepo.UpdateTask) tasksrepo.Task {
	if ut.Title != nil {
		t.Title = *ut.Title
	}
	if ut.Description != nil {
		t.Description = *ut.Description
	}
	if ut.Completed != nil {
		t.Completed = *ut.Completed
	}
	if ut.RemoveDueDate {
		t.DueDate = nil
	} else if ut.DueDate != nil {
		t.DueDate = ut.DueDate
	}
	return t
}
