package tasksbridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jrazmi/taskdeck/sdk/validation"
)

// Task is the wire shape of a task.
type Task struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Completed   bool    `json:"completed"`
	DueDate     *string `json:"dueDate"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// State is the wire shape of a session snapshot.
type State struct {
	Tasks   []Task `json:"tasks"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Notification is the wire shape of a reminder or completion notification.
type Notification struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// StreamFrame is a single websocket message. Kind is either "state" or
// "notification" and selects which field is populated.
type StreamFrame struct {
	Kind         string        `json:"kind"`
	State        *State        `json:"state,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

type CreateTaskInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	DueDate     *string `json:"dueDate"`
}

func (c CreateTaskInput) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if c.DueDate != nil {
		if _, err := validation.ParseFlexibleDate(*c.DueDate); err != nil {
			return fmt.Errorf("invalid dueDate format: %w", err)
		}
	}
	return nil
}

// OptionalTime distinguishes an absent JSON field from an explicit null.
// Absent means leave unchanged, null means clear.
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *OptionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := validation.ParseFlexibleDate(raw)
	if err != nil {
		return fmt.Errorf("invalid dueDate format: %w", err)
	}
	o.Value = validation.TimePtr(t)
	return nil
}

type UpdateTaskInput struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Completed   *bool        `json:"completed"`
	DueDate     OptionalTime `json:"dueDate"`
}

func (u UpdateTaskInput) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return fmt.Errorf("title cannot be blank")
	}
	return nil
}
