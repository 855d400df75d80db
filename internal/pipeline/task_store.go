package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

// TaskStore is the process-wide in-memory registry of tasks. It is the only
// shared mutable state of the pipeline; callers only ever see copies.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	now   func() time.Time
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*models.Task),
		now:   time.Now,
	}
}

// Create registers a new task in phase CREATED.
func (s *TaskStore) Create() models.Task {
	now := s.now().UTC()
	task := &models.Task{
		ID:        uuid.NewString(),
		Phase:     models.PhaseCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return task.Clone()
}

// Get returns a snapshot of the task.
func (s *TaskStore) Get(id string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}
	return task.Clone(), nil
}

// Update applies mutate to a private copy of the task and commits the copy
// only when mutate returns nil, so a failed mutation leaves no trace. Updates
// are serialized; readers observe either the old or the new task.
func (s *TaskStore) Update(id string, mutate func(*models.Task) error) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[id]
	if !ok {
		return models.Task{}, ErrNotFound
	}

	draft := current.Clone()
	if err := mutate(&draft); err != nil {
		return current.Clone(), err
	}
	draft.ID = current.ID
	draft.CreatedAt = current.CreatedAt
	draft.UpdatedAt = s.now().UTC()
	s.tasks[id] = &draft
	return draft.Clone(), nil
}

// List returns snapshots of all tasks, newest first.
func (s *TaskStore) List() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Delete removes a task. Retention is decided by the caller; the store never
// drops tasks on its own.
func (s *TaskStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}
