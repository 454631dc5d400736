package v1

import (
	"context"

	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
)

type projectCreateInput struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type projectUpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateProject creates a project from {name, description}.
func CreateProject(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		var input projectCreateInput
		if err := handlers.DecodeInput(data, &input); err != nil {
			return nil, err
		}
		return store.CreateProject(input.Name, input.Description), nil
	}
}

// ListProjects returns every project.
func ListProjects(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		return store.Projects(), nil
	}
}

// GetProject returns the project named by {id}.
func GetProject(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		return store.GetProject(id)
	}
}

// UpdateProject applies the provided fields to the project named by {id}.
func UpdateProject(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		var input projectUpdateInput
		if err := handlers.DecodeInput(data, &input); err != nil {
			return nil, err
		}
		return store.UpdateProject(id, input.Name, input.Description)
	}
}

// DeleteProject removes the project named by {id} and cascades to its tasks.
func DeleteProject(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		return nil, store.DeleteProject(id)
	}
}
