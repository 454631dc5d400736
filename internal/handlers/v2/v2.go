// Package v2 extends the task actions with the additive priority and user
// assignment fields and richer list filters. Project and user semantics are
// unchanged from v1, so their handlers are re-registered as-is.
package v2

import (
	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
	v1 "github.com/drblury/taskgate/internal/handlers/v1"
)

const version = "v2"

// Register wires every v2 action into the registry.
func Register(r *handlers.Registry, store *domain.Store) {
	r.Register(version, "create_project", v1.CreateProject(store))
	r.Register(version, "list_projects", v1.ListProjects(store))
	r.Register(version, "get_project", v1.GetProject(store))
	r.Register(version, "update_project", v1.UpdateProject(store))
	r.Register(version, "delete_project", v1.DeleteProject(store))

	r.Register(version, "create_task", CreateTask(store))
	r.Register(version, "list_tasks", ListTasks(store))
	r.Register(version, "get_task", GetTask(store))
	r.Register(version, "update_task", UpdateTask(store))
	r.Register(version, "delete_task", v1.DeleteTask(store))

	r.Register(version, "create_user", v1.CreateUser(store))
	r.Register(version, "list_users", v1.ListUsers(store))
	r.Register(version, "get_user", v1.GetUser(store))
	r.Register(version, "update_user", v1.UpdateUser(store))
	r.Register(version, "delete_user", v1.DeleteUser(store))
}
