// Package domain holds the record types and the in-memory store the action
// handlers operate on. The store is the gateway's domain service collaborator;
// durability is out of scope.
package domain

import "errors"

// Error messages double as the wire-level error strings callers see, so they
// keep the original capitalised form.
var (
	ErrProjectNotFound = errors.New("Project not found")
	ErrTaskNotFound    = errors.New("Task not found")
	ErrUserNotFound    = errors.New("User not found")
)

type Project struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Task carries the v2 additive fields; the v1 handlers project them away
// before responding.
type Task struct {
	ID        int    `json:"id"`
	ProjectID int    `json:"project_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Priority  *int   `json:"priority"`
	UserID    *int   `json:"user_id"`
}

type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
