// Package v1 implements the first protocol version of the project, task, and
// user actions. Handlers are exported as constructors so later versions can
// re-register the ones whose semantics did not change.
package v1

import (
	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
)

const version = "v1"

// Register wires every v1 action into the registry.
func Register(r *handlers.Registry, store *domain.Store) {
	r.Register(version, "create_project", CreateProject(store))
	r.Register(version, "list_projects", ListProjects(store))
	r.Register(version, "get_project", GetProject(store))
	r.Register(version, "update_project", UpdateProject(store))
	r.Register(version, "delete_project", DeleteProject(store))

	r.Register(version, "create_task", CreateTask(store))
	r.Register(version, "list_tasks", ListTasks(store))
	r.Register(version, "get_task", GetTask(store))
	r.Register(version, "update_task", UpdateTask(store))
	r.Register(version, "delete_task", DeleteTask(store))

	r.Register(version, "create_user", CreateUser(store))
	r.Register(version, "list_users", ListUsers(store))
	r.Register(version, "get_user", GetUser(store))
	r.Register(version, "update_user", UpdateUser(store))
	r.Register(version, "delete_user", DeleteUser(store))
}
