package ordering

import "time"

// EventKind names a committed structural change.
type EventKind string

const (
	EventTaskCreated    EventKind = "task_created"
	EventTaskDeleted    EventKind = "task_deleted"
	EventTaskIndented   EventKind = "task_indented"
	EventTaskUnindented EventKind = "task_unindented"
)

// Event describes a committed change to a list. TaskIDs lists the tasks the
// change was about: the created task, every deleted task, or the toggled
// task followed by its new parent.
type Event struct {
	Kind    EventKind `json:"kind"`
	ListID  string    `json:"list_id"`
	TaskIDs []string  `json:"task_ids"`
	At      time.Time `json:"at"`
}

// Observer receives events after their transaction has committed.
// OnEvent is called synchronously and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Observe registers o for all future events.
func (e *Engine) Observe(o Observer) {
	e.observersMu.Lock()
	defer e.observersMu.Unlock()
	e.observers = append(e.observers, o)
}

func (e *Engine) emit(ev Event) {
	e.observersMu.RLock()
	defer e.observersMu.RUnlock()
	for _, o := range e.observers {
		o.OnEvent(ev)
	}
}
