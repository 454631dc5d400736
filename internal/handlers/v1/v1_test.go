package v1

import (
	"context"
	"errors"
	"testing"

	"github.com/drblury/taskgate/internal/domain"
	"github.com/drblury/taskgate/internal/handlers"
)

func newRegistry(t *testing.T) (*handlers.Registry, *domain.Store) {
	t.Helper()
	store := domain.NewStore()
	r := handlers.NewRegistry()
	Register(r, store)
	return r, store
}

func call(t *testing.T, r *handlers.Registry, action string, data map[string]any) (any, error) {
	t.Helper()
	fn, ok := r.Lookup("v1", action)
	if !ok {
		t.Fatalf("action %s not registered", action)
	}
	return fn(context.Background(), data)
}

func TestRegisterCoversAllActions(t *testing.T) {
	r, _ := newRegistry(t)

	expected := []string{
		"create_project", "list_projects", "get_project", "update_project", "delete_project",
		"create_task", "list_tasks", "get_task", "update_task", "delete_task",
		"create_user", "list_users", "get_user", "update_user", "delete_user",
	}
	for _, action := range expected {
		if _, ok := r.Lookup("v1", action); !ok {
			t.Fatalf("missing v1 action %s", action)
		}
	}
}

func TestCreateAndGetProject(t *testing.T) {
	r, _ := newRegistry(t)

	created, err := call(t, r, "create_project", map[string]any{"name": "Alpha", "description": "d"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	project := created.(domain.Project)
	if project.ID != 1 || project.Name != "Alpha" {
		t.Fatalf("unexpected project: %+v", project)
	}

	got, err := call(t, r, "get_project", map[string]any{"id": float64(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(domain.Project).Name != "Alpha" {
		t.Fatalf("unexpected project: %+v", got)
	}
}

func TestGetProjectErrors(t *testing.T) {
	r, _ := newRegistry(t)

	if _, err := call(t, r, "get_project", map[string]any{}); !errors.Is(err, handlers.ErrIDRequired) {
		t.Fatalf("expected id is required, got %v", err)
	}
	if _, err := call(t, r, "get_project", map[string]any{"id": 99}); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected Project not found, got %v", err)
	}
}

func TestCreateTaskValidatesProject(t *testing.T) {
	r, _ := newRegistry(t)

	_, err := call(t, r, "create_task", map[string]any{"project_id": 5, "title": "orphan"})
	if !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("expected Project not found, got %v", err)
	}
}

func TestTaskViewHidesV2Fields(t *testing.T) {
	r, store := newRegistry(t)
	project := store.CreateProject("p", "")

	created, err := call(t, r, "create_task", map[string]any{"project_id": project.ID, "title": "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view, ok := created.(taskView)
	if !ok {
		t.Fatalf("expected v1 task view, got %T", created)
	}
	if view.Title != "t" || view.ProjectID != project.ID {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestListTasksFiltersByProject(t *testing.T) {
	r, store := newRegistry(t)
	first := store.CreateProject("first", "")
	second := store.CreateProject("second", "")
	if _, err := store.CreateTask(first.ID, "a", false, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.CreateTask(second.ID, "b", false, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	listed, err := call(t, r, "list_tasks", map[string]any{"project_id": second.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	views := listed.([]taskView)
	if len(views) != 1 || views[0].Title != "b" {
		t.Fatalf("unexpected filter result: %+v", views)
	}
}

func TestListTasksNullFilterMeansNoFilter(t *testing.T) {
	r, store := newRegistry(t)
	first := store.CreateProject("first", "")
	second := store.CreateProject("second", "")
	if _, err := store.CreateTask(first.ID, "a", false, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.CreateTask(second.ID, "b", false, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	listed, err := call(t, r, "list_tasks", map[string]any{"project_id": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	views := listed.([]taskView)
	if len(views) != 2 {
		t.Fatalf("null filter must list everything, got %+v", views)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	r, store := newRegistry(t)
	project := store.CreateProject("p", "")
	task, _ := store.CreateTask(project.ID, "before", false, nil, nil)

	updated, err := call(t, r, "update_task", map[string]any{"id": task.ID, "completed": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view := updated.(taskView)
	if !view.Completed || view.Title != "before" {
		t.Fatalf("partial update went wrong: %+v", view)
	}
}

func TestCreateUserValidation(t *testing.T) {
	r, _ := newRegistry(t)

	if _, err := call(t, r, "create_user", map[string]any{"name": "Ann", "email": "nope"}); err == nil {
		t.Fatal("expected validation error for malformed email")
	}
	if _, err := call(t, r, "create_user", map[string]any{"email": "a@x.com"}); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestCreateUserDuplicateEmailReturnsExisting(t *testing.T) {
	r, _ := newRegistry(t)

	first, err := call(t, r, "create_user", map[string]any{"name": "Ann", "email": "a@x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := call(t, r, "create_user", map[string]any{"name": "Other", "email": "a@x.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.(domain.User).ID != second.(domain.User).ID {
		t.Fatal("expected duplicate email to return the existing user")
	}
}

func TestDeleteUserDetachesTasks(t *testing.T) {
	r, store := newRegistry(t)
	project := store.CreateProject("p", "")
	user := store.CreateUser("Ann", "a@x.com")
	task, _ := store.CreateTask(project.ID, "t", false, nil, &user.ID)

	if _, err := call(t, r, "delete_user", map[string]any{"id": user.ID}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("task must survive: %v", err)
	}
	if got.UserID != nil {
		t.Fatal("expected task to be detached from deleted user")
	}
}

func TestDeleteReturnsNoData(t *testing.T) {
	r, store := newRegistry(t)
	project := store.CreateProject("p", "")

	result, err := call(t, r, "delete_project", map[string]any{"id": project.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("delete must return no data, got %v", result)
	}
}
