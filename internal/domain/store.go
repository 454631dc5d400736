package domain

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Store is the process-wide record store. Records live for the lifetime of
// the process. The store is mutated by handlers running on the router
// goroutine; the id counter additionally takes its own lock because id
// generation may be reached from other goroutines.
type Store struct {
	mu       sync.RWMutex
	projects map[int]*Project
	tasks    map[int]*Task
	users    map[int]*User

	idMu     sync.Mutex
	counters map[string]int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		projects: make(map[int]*Project),
		tasks:    make(map[int]*Task),
		users:    make(map[int]*User),
		counters: make(map[string]int),
	}
}

func (s *Store) nextID(kind string) int {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	s.counters[kind]++
	return s.counters[kind]
}

// CreateProject inserts a new project and returns it.
func (s *Store) CreateProject(name, description string) Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	project := &Project{ID: s.nextID("project"), Name: name, Description: description}
	s.projects[project.ID] = project
	return *project
}

// Projects lists all projects ordered by id.
func (s *Store) Projects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := lo.Map(lo.Values(s.projects), func(p *Project, _ int) Project { return *p })
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects
}

// GetProject returns the project with the given id.
func (s *Store) GetProject(id int) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.projects[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return *project, nil
}

// UpdateProject applies the non-nil fields to the project.
func (s *Store) UpdateProject(id int, name, description *string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.projects[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	if name != nil {
		project.Name = *name
	}
	if description != nil {
		project.Description = *description
	}
	return *project, nil
}

// DeleteProject removes the project and cascades to its tasks. The cascade
// itself never fails.
func (s *Store) DeleteProject(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return ErrProjectNotFound
	}

	for taskID, task := range s.tasks {
		if task.ProjectID == id {
			delete(s.tasks, taskID)
		}
	}
	delete(s.projects, id)
	return nil
}

// CreateTask inserts a task after verifying its project exists. The v2-only
// fields may be nil.
func (s *Store) CreateTask(projectID int, title string, completed bool, priority, userID *int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return Task{}, ErrProjectNotFound
	}

	task := &Task{
		ID:        s.nextID("task"),
		ProjectID: projectID,
		Title:     title,
		Completed: completed,
		Priority:  priority,
		UserID:    userID,
	}
	s.tasks[task.ID] = task
	return *task, nil
}

// Tasks lists all tasks ordered by id.
func (s *Store) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := lo.Map(lo.Values(s.tasks), func(t *Task, _ int) Task { return *t })
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// GetTask returns the task with the given id.
func (s *Store) GetTask(id int) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *task, nil
}

// UpdateTask applies the non-nil fields to the task.
func (s *Store) UpdateTask(id int, title *string, completed *bool, priority, userID *int) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if title != nil {
		task.Title = *title
	}
	if completed != nil {
		task.Completed = *completed
	}
	if priority != nil {
		task.Priority = priority
	}
	if userID != nil {
		task.UserID = userID
	}
	return *task, nil
}

// DeleteTask removes the task.
func (s *Store) DeleteTask(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

// CreateUser inserts a user. Creation is semantically idempotent on email: if
// a user with the same email already exists, that record is returned instead
// of a duplicate being created.
func (s *Store) CreateUser(name, email string) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == email {
			return *user
		}
	}

	user := &User{ID: s.nextID("user"), Name: name, Email: email}
	s.users[user.ID] = user
	return *user
}

// Users lists all users ordered by id.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := lo.Map(lo.Values(s.users), func(u *User, _ int) User { return *u })
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(id int) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *user, nil
}

// HasUser reports whether the user exists.
func (s *Store) HasUser(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[id]
	return ok
}

// UpdateUser applies the non-nil fields to the user.
func (s *Store) UpdateUser(id int, name, email *string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if name != nil {
		user.Name = *name
	}
	if email != nil {
		user.Email = *email
	}
	return *user, nil
}

// DeleteUser removes the user and detaches them from any assigned tasks. The
// tasks themselves survive.
func (s *Store) DeleteUser(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrUserNotFound
	}

	for _, task := range s.tasks {
		if task.UserID != nil && *task.UserID == id {
			task.UserID = nil
		}
	}
	delete(s.users, id)
	return nil
}
