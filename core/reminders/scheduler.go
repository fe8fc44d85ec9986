// Package reminders schedules due-date reminders for tasks. Reminders are
// one-shot, keyed deterministically by task id and lead time, and delivered
// through a small dispatch pool so a slow notifier never blocks a timer.
package reminders

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo"
	"github.com/jrazmi/taskdeck/sdk/environment"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// LeadTimes are the lead times, in minutes before the due date, at which a
// task gets reminded.
var LeadTimes = []int{15, 60, 1440}

// Key returns the deterministic reminder identifier for a task and lead
// time. Scheduling the same key again replaces the pending reminder instead
// of duplicating it.
func Key(taskID string, leadMinutes int) string {
	return fmt.Sprintf("task_%s_%dmin", taskID, leadMinutes)
}

// Options is the exportable scheduler configuration.
type Options struct {
	DispatchWorkers int `env:"REMINDER_DISPATCH_WORKERS" default:"2"`
	QueueSize       int `env:"REMINDER_QUEUE_SIZE" default:"64"`
}

// options holds the internal runtime configuration.
type options struct {
	dispatchWorkers int
	queueSize       int
	logger          *logger.Logger
	now             func() time.Time
}

// Option is a function that configures the scheduler.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithDispatchWorkers sets the number of dispatch goroutines.
func WithDispatchWorkers(count int) Option {
	return func(o *options) {
		o.dispatchWorkers = count
	}
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(size int) Option {
	return func(o *options) {
		o.queueSize = size
	}
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// pendingReminder is an armed timer plus the generation it was armed under.
// A fired callback proves ownership by matching the generation, so a stale
// callback from a replaced timer can never touch its replacement.
type pendingReminder struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler owns the pending reminder timers and the dispatch pool that
// hands fired reminders to the notifier.
type Scheduler struct {
	log      *logger.Logger
	notifier Notifier
	now      func() time.Time

	mu      sync.Mutex
	timers  map[string]pendingReminder
	byTask  map[string]map[string]struct{}
	gen     uint64
	stopped bool

	queue   chan Notification
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewFromEnv creates a scheduler using environment variables.
func NewFromEnv(prefix string, notifier Notifier, opts ...Option) (*Scheduler, error) {
	var cfg Options
	if err := environment.ParseEnvTags(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing reminder config: %w", err)
	}
	return newScheduler(cfg, notifier, opts...), nil
}

// NewScheduler creates a scheduler with default configuration.
func NewScheduler(notifier Notifier, opts ...Option) *Scheduler {
	cfg := Options{
		DispatchWorkers: 2,
		QueueSize:       64,
	}
	return newScheduler(cfg, notifier, opts...)
}

func newScheduler(cfg Options, notifier Notifier, opts ...Option) *Scheduler {
	internalOpts := &options{
		dispatchWorkers: cfg.DispatchWorkers,
		queueSize:       cfg.QueueSize,
		now:             time.Now,
	}

	for _, opt := range opts {
		opt(internalOpts)
	}

	if internalOpts.logger == nil {
		internalOpts.logger = logger.NewDefault()
	}
	if internalOpts.dispatchWorkers <= 0 {
		internalOpts.dispatchWorkers = 1
	}
	if internalOpts.queueSize <= 0 {
		internalOpts.queueSize = 16
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		log:      internalOpts.logger,
		notifier: notifier,
		now:      internalOpts.now,
		timers:   make(map[string]pendingReminder),
		byTask:   make(map[string]map[string]struct{}),
		queue:    make(chan Notification, internalOpts.queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < internalOpts.dispatchWorkers; i++ {
		s.workers.Add(1)
		go s.dispatch(fmt.Sprintf("reminder-dispatch-%d", i+1))
	}

	return s
}

// Stop cancels every pending reminder and drains the dispatch pool.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
	s.byTask = make(map[string]map[string]struct{})
	s.mu.Unlock()

	s.cancel()
	s.workers.Wait()
}

// Schedule registers a one-shot reminder leadMinutes before the task's due
// date. Nothing is scheduled when the task is completed, has no due date, or
// the fire time is not strictly in the future; that last case is expected
// for near-due tasks, not an error. The returned bool reports whether a
// reminder was created.
func (s *Scheduler) Schedule(task tasksrepo.Task, leadMinutes int) (string, bool) {
	if task.Completed || task.DueDate == nil {
		return "", false
	}

	now := s.now()
	fireAt := task.DueDate.Add(-time.Duration(leadMinutes) * time.Minute)
	if !fireAt.After(now) {
		return "", false
	}

	n := Notification{
		Type:   TypeReminder,
		TaskID: task.ID,
		Title:  "Task reminder",
		Body:   fmt.Sprintf("%s - due in %d minutes", task.Title, leadMinutes),
		UserID: task.UserID,
	}

	key := Key(task.ID, leadMinutes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", false
	}

	// Same key again is an idempotent replacement.
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}

	taskID := task.ID
	s.gen++
	gen := s.gen
	s.timers[key] = pendingReminder{
		timer: time.AfterFunc(fireAt.Sub(now), func() {
			s.fire(taskID, key, gen, n)
		}),
		gen: gen,
	}
	if s.byTask[taskID] == nil {
		s.byTask[taskID] = make(map[string]struct{})
	}
	s.byTask[taskID][key] = struct{}{}

	return key, true
}

// ScheduleAll schedules the task at every standard lead time, returning only
// the reminders actually created. A near-due task silently gets fewer, or
// zero, reminders.
func (s *Scheduler) ScheduleAll(task tasksrepo.Task) []string {
	var ids []string
	for _, lead := range LeadTimes {
		if id, ok := s.Schedule(task, lead); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Cancel removes the pending reminder for the given task and lead time.
// Cancelling a reminder that does not exist is a no-op.
func (s *Scheduler) Cancel(taskID string, leadMinutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelKey(taskID, Key(taskID, leadMinutes))
}

// CancelAll removes every pending reminder for the task.
func (s *Scheduler) CancelAll(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.byTask[taskID] {
		s.cancelKey(taskID, key)
	}
}

// ClearAll removes every pending reminder for every task.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, key)
	}
	s.byTask = make(map[string]map[string]struct{})
}

// Reschedule cancels all of the old task's reminders, then schedules the new
// task from scratch when it is incomplete and has a due date. Recomputing
// everything beats diffing: due-date changes are rare and redundant cancels
// are cheap.
func (s *Scheduler) Reschedule(oldTask, newTask tasksrepo.Task) {
	s.CancelAll(oldTask.ID)

	if !newTask.Completed && newTask.DueDate != nil {
		s.ScheduleAll(newTask)
	}
}

// NotifyCompleted fires an immediate completion notification, independent of
// the task's reminder set.
func (s *Scheduler) NotifyCompleted(task tasksrepo.Task) {
	s.enqueue(Notification{
		Type:   TypeCompleted,
		TaskID: task.ID,
		Title:  "Task completed",
		Body:   fmt.Sprintf("%q was marked as completed", task.Title),
		UserID: task.UserID,
	})
}

// Pending returns the keys of the task's pending reminders, sorted order not
// guaranteed.
func (s *Scheduler) Pending(taskID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.byTask[taskID]))
	for key := range s.byTask[taskID] {
		keys = append(keys, key)
	}
	return keys
}

// cancelKey must be called with mu held.
func (s *Scheduler) cancelKey(taskID, key string) {
	entry, ok := s.timers[key]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(s.timers, key)
	delete(s.byTask[taskID], key)
	if len(s.byTask[taskID]) == 0 {
		delete(s.byTask, taskID)
	}
}

// fire runs on the timer goroutine when a reminder comes due.
func (s *Scheduler) fire(taskID, key string, gen uint64, n Notification) {
	s.mu.Lock()
	// The timer may have been replaced or cancelled between firing and
	// acquiring the lock; only the generation currently armed for the key
	// delivers. A stale callback must not remove its replacement.
	if entry, ok := s.timers[key]; !ok || entry.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	delete(s.byTask[taskID], key)
	if len(s.byTask[taskID]) == 0 {
		delete(s.byTask, taskID)
	}
	s.mu.Unlock()

	s.enqueue(n)
}

func (s *Scheduler) enqueue(n Notification) {
	select {
	case s.queue <- n:
	case <-s.ctx.Done():
	default:
		// A full queue drops the notification: a missed reminder is degraded
		// service, never a task-data failure.
		s.log.Warn("notification queue full, dropping", "type", n.Type, "task_id", n.TaskID)
	}
}

func (s *Scheduler) dispatch(workerID string) {
	defer s.workers.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case n := <-s.queue:
			s.deliver(workerID, n)
		}
	}
}

func (s *Scheduler) deliver(workerID string, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic recovered in notifier",
				"worker_id", workerID,
				"panic", r,
				"stack_trace", string(debug.Stack()),
			)
		}
	}()

	if err := s.notifier.Send(s.ctx, n); err != nil {
		s.log.Warn("notification delivery failed",
			"worker_id", workerID,
			"type", n.Type,
			"task_id", n.TaskID,
			"error", err,
		)
	}
}
