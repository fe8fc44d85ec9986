package tasksbridge

import (
	"time"

	"github.com/jrazmi/taskdeck/core/reminders"
	"github.com/jrazmi/taskdeck/core/repositories/tasksrepo"
	"github.com/jrazmi/taskdeck/core/tasksession"
	"github.com/jrazmi/taskdeck/sdk/validation"
)

func MarshalToBridge(task tasksrepo.Task) Task {
	var dueDate *string
	if task.DueDate != nil {
		utc := task.DueDate.UTC()
		dueDate = validation.StringPtr(utc.Format(time.RFC3339))
	}

	return Task{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Completed:   task.Completed,
		DueDate:     dueDate,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   task.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func MarshalListToBridge(tasks []tasksrepo.Task) []Task {
	bridgeTasks := make([]Task, len(tasks))
	for i, task := range tasks {
		bridgeTasks[i] = MarshalToBridge(task)
	}
	return bridgeTasks
}

func MarshalStateToBridge(st tasksession.State) State {
	return State{
		Tasks:   MarshalListToBridge(st.Tasks),
		Loading: st.Loading,
		Error:   st.Err,
	}
}

func MarshalNotificationToBridge(n reminders.Notification) Notification {
	return Notification{
		Type:   n.Type,
		TaskID: n.TaskID,
		Title:  n.Title,
		Body:   n.Body,
	}
}

func MarshalCreateToRepository(input CreateTaskInput) tasksrepo.CreateTask {
	ct := tasksrepo.CreateTask{
		Title:       input.Title,
		Description: input.Description,
	}

	if input.DueDate != nil {
		// Validate already checked the format.
		if t, err := validation.ParseFlexibleDate(*input.DueDate); err == nil {
			ct.DueDate = validation.TimePtr(t)
		}
	}

	return ct
}

func MarshalUpdateToRepository(input UpdateTaskInput) tasksrepo.UpdateTask {
	ut := tasksrepo.UpdateTask{
		Title:       input.Title,
		Description: input.Description,
		Completed:   input.Completed,
	}

	if input.DueDate.Set {
		if input.DueDate.Value == nil {
			ut.RemoveDueDate = true
		} else {
			ut.DueDate = input.DueDate.Value
		}
	}

	return ut
}
