package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a task.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
	StateAborted State = "aborted"
)

// ErrorProgress is the progress value that signals a failed task.
const ErrorProgress = -1

// Task tracks one in-flight long-running operation. Mutations return a
// Snapshot of the new state; publishing that snapshot is the caller's
// concern (see Notifier), so state changes carry no implicit side effects.
type Task struct {
	mu        sync.Mutex
	id        string
	taskType  string
	progress  float64
	message   string
	errText   string
	state     State
	metadata  map[string]any
	createdAt time.Time
	updatedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Snapshot is the serializable view of a task, without the cancel handle.
type Snapshot struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Progress  float64        `json:"progress"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	State     State          `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// New creates a running task of the given type.
func New(taskType string, metadata map[string]any) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Task{
		id:        uuid.New().String(),
		taskType:  taskType,
		state:     StateRunning,
		metadata:  metadata,
		createdAt: now,
		updatedAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ID returns the generated task id.
func (t *Task) ID() string { return t.id }

// Context returns the cancellation context threaded through every
// suspension point of the operation.
func (t *Task) Context() context.Context { return t.ctx }

// Abort cancels the task. The cancellation flag is observably set
// before Abort returns.
func (t *Task) Abort() {
	t.cancel()
	t.mu.Lock()
	if t.state == StateRunning {
		t.state = StateAborted
		t.updatedAt = time.Now()
	}
	t.mu.Unlock()
}

// Aborted reports whether the task has been cancelled.
func (t *Task) Aborted() bool {
	return t.ctx.Err() != nil
}

// SetProgress records progress (0-100) and a human-readable message.
func (t *Task) SetProgress(progress float64, message string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = progress
	t.message = message
	t.updatedAt = time.Now()
	return t.snapshotLocked()
}

// Complete marks the task done at 100%.
func (t *Task) Complete(message string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = 100
	t.message = message
	t.state = StateDone
	t.updatedAt = time.Now()
	return t.snapshotLocked()
}

// Fail marks the task failed, retaining the error message. Progress is
// set to the error sentinel.
func (t *Task) Fail(err error) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = ErrorProgress
	t.errText = err.Error()
	t.state = StateFailed
	t.updatedAt = time.Now()
	return t.snapshotLocked()
}

// Snapshot returns the current serializable state.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) snapshotLocked() Snapshot {
	return Snapshot{
		ID:        t.id,
		Type:      t.taskType,
		Progress:  t.progress,
		Message:   t.message,
		Error:     t.errText,
		State:     t.state,
		Metadata:  t.metadata,
		CreatedAt: t.createdAt,
		UpdatedAt: t.updatedAt,
	}
}
