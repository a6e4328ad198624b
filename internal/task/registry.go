package task

import "sync"

// Registry is the active-task table: every in-flight task keyed by id.
// Terminal tasks are removed by their owner.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Add registers a task.
func (r *Registry) Add(t *Task) {
	r.mu.Lock()
	r.tasks[t.ID()] = t
	r.mu.Unlock()
}

// Get returns the task with the given id, or nil.
func (r *Registry) Get(id string) *Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[id]
}

// Remove drops a task from the table.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}

// Abort cancels the task with the given id. Returns false if the id is
// not active.
func (r *Registry) Abort(id string) bool {
	t := r.Get(id)
	if t == nil {
		return false
	}
	t.Abort()
	return true
}

// List returns serializable snapshots of all active tasks.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Snapshot())
	}
	return out
}
