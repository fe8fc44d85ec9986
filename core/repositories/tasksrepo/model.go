package tasksrepo

import (
	"strings"
	"time"
)

// DueSoonWindow is the forward-looking window used by the due-soon
// classification.
const DueSoonWindow = 24 * time.Hour

// Task is the core to-do record. A task always belongs to exactly one user;
// CreatedAt is fixed at creation and UpdatedAt is refreshed on every
// mutation by the store, so UpdatedAt >= CreatedAt always holds.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      string     `json:"user_id"`
}

// Overdue reports whether the task's due date has passed. Completed tasks
// are never overdue.
func (t Task) Overdue(now time.Time) bool {
	if t.Completed || t.DueDate == nil {
		return false
	}
	return t.DueDate.Before(now)
}

// DueSoon reports whether the task's due date falls inside the forward
// due-soon window. Completed tasks are never due-soon.
func (t Task) DueSoon(now time.Time) bool {
	return t.DueSoonWithin(now, DueSoonWindow)
}

// DueSoonWithin is DueSoon with an explicit window.
func (t Task) DueSoonWithin(now time.Time, window time.Duration) bool {
	if t.Completed || t.DueDate == nil {
		return false
	}
	due := *t.DueDate
	return !due.Before(now) && !due.After(now.Add(window))
}

// CreateTask carries the caller-supplied fields for a new task. Completed is
// not part of it: a new task always starts incomplete.
type CreateTask struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// Validate enforces the creation invariants.
func (c CreateTask) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrTitleRequired
	}
	return nil
}

// UpdateTask carries a partial update. Nil pointer fields are left
// untouched. RemoveDueDate distinguishes "clear the due date" from "leave
// the due date alone": DueDate == nil with RemoveDueDate false means
// untouched, RemoveDueDate true means cleared.
type UpdateTask struct {
	Title         *string
	Description   *string
	Completed     *bool
	DueDate       *time.Time
	RemoveDueDate bool
}

// Validate enforces the update invariants.
func (u UpdateTask) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ErrTitleRequired
	}
	if u.DueDate != nil && u.RemoveDueDate {
		return ErrConflictingDueDate
	}
	return nil
}
