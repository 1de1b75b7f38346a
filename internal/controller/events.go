package controller

import "reflect"

// EventType identifies a notification delivered to listeners.
type EventType int

const (
	// ModelChanged means the projection changed in a way presentation should
	// reflect.
	ModelChanged EventType = iota
	// CommandsPending means commands were recorded while reviewing history.
	// Only emitted when Options.NotifyPending is set.
	CommandsPending
	// SessionStateChanged means State() returns a new value.
	SessionStateChanged
	// SnapshotLoaded means the initial game state was replaced before any
	// command was recorded.
	SnapshotLoaded
)

func (t EventType) String() string {
	switch t {
	case ModelChanged:
		return "model_changed"
	case CommandsPending:
		return "commands_pending"
	case SessionStateChanged:
		return "session_state_changed"
	case SnapshotLoaded:
		return "snapshot_loaded"
	default:
		return "unknown"
	}
}

// EventListener receives controller notifications on the session loop.
// Implementations must not block. ModelChanged is the only event announcing a
// projection change; one action may also deliver SessionStateChanged or
// another event type, so implementations switch on the type and ignore what
// they do not handle.
type EventListener interface {
	HandleEvent(EventType)
}

// ListenerFunc adapts a function into an EventListener.
type ListenerFunc func(EventType)

func (f ListenerFunc) HandleEvent(event EventType) {
	if f == nil {
		return
	}
	f(event)
}

func sameListener(a, b EventListener) bool {
	if a == nil || b == nil {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	return ta.Comparable() && a == b
}
