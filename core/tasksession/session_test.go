package tasksession_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrazmi/taskdeck/bridge/scaffolding/errs"
	"github.com/jrazmi/taskdeck/core/reminders"
	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo"
	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo/stores/tasksdocstore"
	"github.com/jrazmi/taskdeck/core/tasksession"
	"github.com/jrazmi/taskdeck/infrastructure/docstore/memdocstore"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

type harness struct {
	backend   *memdocstore.Store
	repo      *tasksrepo.Repository
	scheduler *reminders.Scheduler
	manager   *tasksession.Manager
	notified  <-chan reminders.Notification
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logger.NewDefault(logger.WithLevel("ERROR"))
	backend := memdocstore.NewStore()
	storer := tasksdocstore.NewStore(log, backend)
	repo := tasksrepo.NewRepository(log, storer)

	notified := make(chan reminders.Notification, 16)
	notifier := reminders.NotifierFunc(func(ctx context.Context, n reminders.Notification) error {
		notified <- n
		return nil
	})
	scheduler := reminders.NewScheduler(notifier, reminders.WithLogger(log))
	t.Cleanup(scheduler.Stop)

	return &harness{
		backend:   backend,
		repo:      repo,
		scheduler: scheduler,
		manager:   tasksession.NewManager(log, repo, scheduler),
		notified:  notified,
	}
}

// waitFor polls the session until the condition holds or the deadline hits.
func waitFor(t *testing.T, s *tasksession.Session, what string, cond func(tasksession.State) bool) tasksession.State {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	var last tasksession.State
	for time.Now().Before(deadline) {
		last = s.Snapshot()
		if cond(last) {
			return last
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, last state: %+v", what, last)
	return last
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	waitFor(t, s, "initial snapshot", func(st tasksession.State) bool {
		return !st.Loading
	})

	id, err := s.Add(ctx, tasksrepo.CreateTask{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	st := waitFor(t, s, "task to appear", func(st tasksession.State) bool {
		return len(st.Tasks) == 1
	})
	if st.Tasks[0].ID != id {
		t.Errorf("task id = %q, want %q", st.Tasks[0].ID, id)
	}
	if st.Tasks[0].Title != "buy milk" {
		t.Errorf("task title = %q, want %q", st.Tasks[0].Title, "buy milk")
	}
	if st.Tasks[0].Completed {
		t.Error("new task marked completed")
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	waitFor(t, s, "task to disappear", func(st tasksession.State) bool {
		return len(st.Tasks) == 0
	})
}

func TestSessionSnapshotOrdering(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	base := time.Now()
	clock := base
	h.backend.SetClock(func() time.Time { return clock })

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	titles := []string{"first", "second", "third"}
	for i, title := range titles {
		clock = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.Add(ctx, tasksrepo.CreateTask{Title: title}); err != nil {
			t.Fatalf("Add(%q) failed: %v", title, err)
		}
	}

	st := waitFor(t, s, "all three tasks", func(st tasksession.State) bool {
		return len(st.Tasks) == 3
	})

	// Newest first.
	want := []string{"third", "second", "first"}
	for i, title := range want {
		if st.Tasks[i].Title != title {
			t.Errorf("tasks[%d].Title = %q, want %q", i, st.Tasks[i].Title, title)
		}
	}
}

func TestSessionIsolatedPerUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open(alice) failed: %v", err)
	}
	defer h.manager.Close("alice")

	bob, err := h.manager.Open(ctx, "bob")
	if err != nil {
		t.Fatalf("Open(bob) failed: %v", err)
	}
	defer h.manager.Close("bob")

	if _, err := alice.Add(ctx, tasksrepo.CreateTask{Title: "alice task"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	waitFor(t, alice, "alice's task", func(st tasksession.State) bool {
		return len(st.Tasks) == 1
	})

	// Bob's view must stay empty.
	time.Sleep(50 * time.Millisecond)
	if st := bob.Snapshot(); len(st.Tasks) != 0 {
		t.Errorf("bob sees %d tasks, want 0", len(st.Tasks))
	}
}

func TestToggleComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	id, err := s.Add(ctx, tasksrepo.CreateTask{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	waitFor(t, s, "task to appear", func(st tasksession.State) bool {
		return len(st.Tasks) == 1
	})

	if err := s.ToggleComplete(ctx, id); err != nil {
		t.Fatalf("ToggleComplete() failed: %v", err)
	}
	waitFor(t, s, "task to complete", func(st tasksession.State) bool {
		return len(st.Tasks) == 1 && st.Tasks[0].Completed
	})

	// Completing fires an immediate notification.
	select {
	case n := <-h.notified:
		if n.Type != reminders.TypeCompleted {
			t.Errorf("notification type = %q, want %q", n.Type, reminders.TypeCompleted)
		}
		if n.TaskID != id {
			t.Errorf("notification task id = %q, want %q", n.TaskID, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("completion notification never delivered")
	}

	if err := s.ToggleComplete(ctx, id); err != nil {
		t.Fatalf("ToggleComplete() back failed: %v", err)
	}
	waitFor(t, s, "task to uncomplete", func(st tasksession.State) bool {
		return len(st.Tasks) == 1 && !st.Tasks[0].Completed
	})
}

func TestToggleCompleteUnknownTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	err = s.ToggleComplete(ctx, "no-such-task")
	if err == nil {
		t.Fatal("ToggleComplete() on unknown task succeeded")
	}
	if !errs.IsCode(err, errs.NotFound) {
		t.Errorf("error code = %v, want not-found: %v", errs.Code(err), err)
	}
}

func TestAddValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	_, err = s.Add(ctx, tasksrepo.CreateTask{Title: "   "})
	if err == nil {
		t.Fatal("Add() with blank title succeeded")
	}
	if !errs.IsCode(err, errs.InvalidArgument) {
		t.Errorf("error code = %v, want invalid-argument: %v", errs.Code(err), err)
	}
}

func TestAddSchedulesReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	due := time.Now().Add(48 * time.Hour)
	id, err := s.Add(ctx, tasksrepo.CreateTask{Title: "file taxes", DueDate: &due})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	if pending := h.scheduler.Pending(id); len(pending) != 3 {
		t.Errorf("Pending() = %v, want 3 reminders", pending)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if pending := h.scheduler.Pending(id); len(pending) != 0 {
		t.Errorf("after delete, Pending() = %v, want empty", pending)
	}
}

func TestUpdateReschedulesReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	due := time.Now().Add(48 * time.Hour)
	id, err := s.Add(ctx, tasksrepo.CreateTask{Title: "file taxes", DueDate: &due})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	waitFor(t, s, "task to appear", func(st tasksession.State) bool {
		return len(st.Tasks) == 1
	})

	if err := s.Update(ctx, id, tasksrepo.UpdateTask{RemoveDueDate: true}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if pending := h.scheduler.Pending(id); len(pending) != 0 {
		t.Errorf("after due date removal, Pending() = %v, want empty", pending)
	}

	newDue := time.Now().Add(72 * time.Hour)
	waitFor(t, s, "due date removal", func(st tasksession.State) bool {
		return len(st.Tasks) == 1 && st.Tasks[0].DueDate == nil
	})
	if err := s.Update(ctx, id, tasksrepo.UpdateTask{DueDate: &newDue}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if pending := h.scheduler.Pending(id); len(pending) != 3 {
		t.Errorf("after new due date, Pending() = %v, want 3 reminders", pending)
	}
}

func TestFeedErrorKeepsTasksAndAutoClears(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	if _, err := s.Add(ctx, tasksrepo.CreateTask{Title: "buy milk"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	waitFor(t, s, "task to appear", func(st tasksession.State) bool {
		return len(st.Tasks) == 1
	})

	h.backend.FailSubscriptions("tasks", errors.New("stream broke"))

	st := waitFor(t, s, "error to surface", func(st tasksession.State) bool {
		return st.Err != ""
	})
	if len(st.Tasks) != 1 {
		t.Errorf("error wiped the task list: %d tasks, want 1", len(st.Tasks))
	}

	// The banner clears on its own after a few seconds.
	waitFor(t, s, "error to clear", func(st tasksession.State) bool {
		return st.Err == ""
	})
}

func TestSnapshotClearsError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	waitFor(t, s, "initial snapshot", func(st tasksession.State) bool {
		return !st.Loading
	})

	h.backend.FailSubscriptions("tasks", errors.New("stream broke"))
	waitFor(t, s, "error to surface", func(st tasksession.State) bool {
		return st.Err != ""
	})

	// A fresh write produces a new snapshot, which clears the banner
	// before the timer would.
	if _, err := s.Add(ctx, tasksrepo.CreateTask{Title: "buy milk"}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	waitFor(t, s, "snapshot to clear error", func(st tasksession.State) bool {
		return st.Err == "" && len(st.Tasks) == 1
	})
}

func TestManagerReplacesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}

	second, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer h.manager.Close("alice")

	if first == second {
		t.Fatal("Open() returned the same session twice")
	}

	// The first session's watch stream is closed.
	firstUpdates, cancel := first.Watch()
	defer cancel()
	done := make(chan struct{})
	go func() {
		for range firstUpdates {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("replaced session never closed its watch channel")
	}

	got, ok := h.manager.Get("alice")
	if !ok || got != second {
		t.Error("Get() does not return the replacement session")
	}
}

func TestNotificationsReachWatcher(t *testing.T) {
	log := logger.NewDefault(logger.WithLevel("ERROR"))
	backend := memdocstore.NewStore()
	repo := tasksrepo.NewRepository(log, tasksdocstore.NewStore(log, backend))

	// Wired the way the composition root does it: fired notifications route
	// back through the manager to the owning user's session.
	var manager *tasksession.Manager
	notifier := reminders.NotifierFunc(func(ctx context.Context, n reminders.Notification) error {
		return manager.Send(ctx, n)
	})
	scheduler := reminders.NewScheduler(notifier, reminders.WithLogger(log))
	t.Cleanup(scheduler.Stop)
	manager = tasksession.NewManager(log, repo, scheduler)

	ctx := context.Background()
	s, err := manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer manager.Close("alice")

	notifs, cancel := s.WatchNotifications()
	defer cancel()

	id, err := s.Add(ctx, tasksrepo.CreateTask{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	waitFor(t, s, "task to appear", func(st tasksession.State) bool {
		return len(st.Tasks) == 1
	})

	if err := s.ToggleComplete(ctx, id); err != nil {
		t.Fatalf("ToggleComplete() failed: %v", err)
	}

	select {
	case n := <-notifs:
		if n.Type != reminders.TypeCompleted {
			t.Errorf("notification type = %q, want %q", n.Type, reminders.TypeCompleted)
		}
		if n.TaskID != id {
			t.Errorf("notification task id = %q, want %q", n.TaskID, id)
		}
		if n.UserID != "alice" {
			t.Errorf("notification user id = %q, want %q", n.UserID, "alice")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification never reached the watcher")
	}

	// Sending for a user with no open session is a silent drop.
	if err := manager.Send(ctx, reminders.Notification{UserID: "nobody"}); err != nil {
		t.Errorf("Send() for offline user = %v, want nil", err)
	}
}

func TestCloseCancelsReminders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.manager.Open(ctx, "alice")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	due := time.Now().Add(48 * time.Hour)
	id, err := s.Add(ctx, tasksrepo.CreateTask{Title: "file taxes", DueDate: &due})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	waitFor(t, s, "task to appear", func(st tasksession.State) bool {
		return len(st.Tasks) == 1
	})

	h.manager.Close("alice")

	if pending := h.scheduler.Pending(id); len(pending) != 0 {
		t.Errorf("after Close, Pending() = %v, want empty", pending)
	}
	if _, ok := h.manager.Get("alice"); ok {
		t.Error("Get() returns a closed session")
	}
}
