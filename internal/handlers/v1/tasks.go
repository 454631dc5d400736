package v1

import (
	"context"

	"github.com/samber/lo"

	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
)

// taskView is the v1 projection of a task: the additive v2 fields are not
// exposed in this namespace.
type taskView struct {
	ID        int    `json:"id"`
	ProjectID int    `json:"project_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

func viewTask(t domain.Task) taskView {
	return taskView{ID: t.ID, ProjectID: t.ProjectID, Title: t.Title, Completed: t.Completed}
}

type taskCreateInput struct {
	ProjectID int    `json:"project_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Completed bool   `json:"completed"`
}

type taskUpdateInput struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

// CreateTask creates a task under an existing project.
func CreateTask(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		var input taskCreateInput
		if err := handlers.DecodeInput(data, &input); err != nil {
			return nil, err
		}
		task, err := store.CreateTask(input.ProjectID, input.Title, input.Completed, nil, nil)
		if err != nil {
			return nil, err
		}
		return viewTask(task), nil
	}
}

// ListTasks returns every task, optionally filtered by {project_id}.
func ListTasks(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		tasks := store.Tasks()
		// An explicit null filter means no filter.
		if value, ok := data["project_id"]; ok && value != nil {
			projectID, err := handlers.RequireIntField(data, "project_id")
			if err != nil {
				return nil, err
			}
			tasks = lo.Filter(tasks, func(t domain.Task, _ int) bool { return t.ProjectID == projectID })
		}
		return lo.Map(tasks, func(t domain.Task, _ int) taskView { return viewTask(t) }), nil
	}
}

// GetTask returns the task named by {id}.
func GetTask(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		task, err := store.GetTask(id)
		if err != nil {
			return nil, err
		}
		return viewTask(task), nil
	}
}

// UpdateTask applies the provided fields to the task named by {id}.
func UpdateTask(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		var input taskUpdateInput
		if err := handlers.DecodeInput(data, &input); err != nil {
			return nil, err
		}
		task, err := store.UpdateTask(id, input.Title, input.Completed, nil, nil)
		if err != nil {
			return nil, err
		}
		return viewTask(task), nil
	}
}

// DeleteTask removes the task named by {id}.
func DeleteTask(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		return nil, store.DeleteTask(id)
	}
}
