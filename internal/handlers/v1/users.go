package v1

import (
	"context"

	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
)

type userCreateInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type userUpdateInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email" validate:"omitempty,email"`
}

// CreateUser creates a user from {name, email}. Creation short-circuits on a
// duplicate email and returns the existing record.
func CreateUser(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		var input userCreateInput
		if err := handlers.DecodeInput(data, &input); err != nil {
			return nil, err
		}
		return store.CreateUser(input.Name, input.Email), nil
	}
}

// ListUsers returns every user.
func ListUsers(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		return store.Users(), nil
	}
}

// GetUser returns the user named by {id}.
func GetUser(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		return store.GetUser(id)
	}
}

// UpdateUser applies the provided fields to the user named by {id}.
func UpdateUser(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		var input userUpdateInput
		if err := handlers.DecodeInput(data, &input); err != nil {
			return nil, err
		}
		return store.UpdateUser(id, input.Name, input.Email)
	}
}

// DeleteUser removes the user named by {id}, detaching them from any tasks.
func DeleteUser(store *domain.Store) handlers.ActionFunc {
	return func(ctx context.Context, data map[string]any) (any, error) {
		id, err := handlers.RequireID(data)
		if err != nil {
			return nil, err
		}
		return nil, store.DeleteUser(id)
	}
}
