package lifecycle

import (
	"context"

	"hindsight/client/logging"
)

const (
	// EventStateChanged is emitted on every session state transition.
	EventStateChanged logging.EventType = "lifecycle.state_changed"
	// EventSessionFailed is emitted when a fatal error ends the session.
	EventSessionFailed logging.EventType = "lifecycle.session_failed"
)

// StateChangedPayload captures a session state transition.
type StateChangedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SessionFailedPayload captures the fatal error.
type SessionFailedPayload struct {
	Error string `json:"error"`
}

// StateChanged publishes an info event for a session transition.
func StateChanged(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload StateChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStateChanged,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// SessionFailed publishes an error event when the session cannot continue.
func SessionFailed(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload SessionFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSessionFailed,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
