package v2

import (
	"context"

	"github.com/samber/lo"

	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
)

type taskCreateInput struct {
	ProjectID int    `json:"project_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Completed bool   `json:"completed"`
	Priority  *int   `json:"priority"`
	UserID    *int   `json:"user_id"`
}

type taskUpdateInput struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
	Priority  *int    `json:"priority"`
	UserID    *int    `json:"user_id"`
}

type taskListFilter struct {
	ProjectID   *int  `json:"project_id"`
	Completed   *bool `json:"completed"`
	PriorityMin *int  `json:"priority_min"`
	PriorityMax *int  `json:"priority_max"`
	UserID      *int  `json:"user_id"`
}

// CreateTask creates a task with the v2 fields. A supplied user_id must name
// an existing user.
func CreateTask(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		var input taskCreateInput
		if err := handlers.DecodeInput(data, &input); err != nil {
			return nil, err
		}
		if input.UserID != nil && !store.HasUser(*input.UserID) {
			return nil, domain.ErrUserNotFound
		}
		return store.CreateTask(input.ProjectID, input.Title, input.Completed, input.Priority, input.UserID)
	}
}

// ListTasks returns tasks matching the optional filters.
func ListTasks(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		var filter taskListFilter
		if err := handlers.DecodeInput(data, &filter); err != nil {
			return nil, err
		}

		tasks := store.Tasks()
		if filter.ProjectID != nil {
			tasks = lo.Filter(tasks, func(t domain.Task, _ int) bool { return t.ProjectID == *filter.ProjectID })
		}
		if filter.Completed != nil {
			tasks = lo.Filter(tasks, func(t domain.Task, _ int) bool { return t.Completed == *filter.Completed })
		}
		if filter.PriorityMin != nil {
			tasks = lo.Filter(tasks, func(t domain.Task, _ int) bool {
				return t.Priority != nil && *t.Priority >= *filter.PriorityMin
			})
		}
		if filter.PriorityMax != nil {
			tasks = lo.Filter(tasks, func(t domain.Task, _ int) bool {
				return t.Priority != nil && *t.Priority <= *filter.PriorityMax
			})
		}
		if filter.UserID != nil {
			tasks = lo.Filter(tasks, func(t domain.Task, _ int) bool {
				return t.UserID != nil && *t.UserID == *filter.UserID
			})
		}
		return tasks, nil
	}
}

// GetTask returns the task named by {id} with the v2 fields.
func GetTask(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		return store.GetTask(id)
	}
}

// UpdateTask applies the provided fields to the task named by {id}. A
// supplied user_id must name an existing user.
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
		if input.UserID != nil && !store.HasUser(*input.UserID) {
			return nil, domain.ErrUserNotFound
		}
		return store.UpdateTask(id, input.Title, input.Completed, input.Priority, input.UserID)
	}
}
