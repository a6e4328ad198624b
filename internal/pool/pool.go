package pool

import "context"

// Executor admits at most N concurrently running units of work.
// Submitters beyond the limit block until a slot frees up or their
// context is done.
type Executor struct {
	sem chan struct{}
}

// New creates an executor with the given concurrency limit.
func New(limit int) *Executor {
	if limit <= 0 {
		limit = 1
	}
	return &Executor{sem: make(chan struct{}, limit)}
}

// Do acquires a slot, runs fn in the calling goroutine, and releases the
// slot when fn returns. Returns the context error if the slot could not
// be acquired in time.
func (e *Executor) Do(ctx context.Context, fn func() error) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()
	return fn()
}

// Go runs fn on its own goroutine once a slot is available. If the
// context is done before a slot frees up, fn never runs.
func (e *Executor) Go(ctx context.Context, fn func()) {
	go func() {
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-e.sem }()
		fn()
	}()
}

// Limit returns the configured concurrency limit.
func (e *Executor) Limit() int {
	return cap(e.sem)
}
