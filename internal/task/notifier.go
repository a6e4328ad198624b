package task

import (
	"sync"
	"time"
)

// Event kinds published by task owners.
const (
	KindProgress = "task.progress"
	KindDone     = "task.done"
	KindError    = "task.error"
	KindAborted  = "task.aborted"
)

// Event is a task state change delivered to observers.
type Event struct {
	Kind      string
	Timestamp time.Time
	Task      Snapshot
}

// Notifier fans task events out to subscribers. Delivery is
// non-blocking: a subscriber with a full buffer misses the event.
type Notifier struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Publish delivers the snapshot to all subscribers.
func (n *Notifier) Publish(kind string, snap Snapshot) {
	evt := Event{Kind: kind, Timestamp: time.Now(), Task: snap}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- evt:
		default:
			// Drop event if subscriber is full (non-blocking).
		}
	}
}

// Subscribe returns a channel receiving task events and an unsubscribe
// function. bufSize controls the channel buffer.
func (n *Notifier) Subscribe(bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = ch
	n.mu.Unlock()

	return ch, func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}
