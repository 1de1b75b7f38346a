package history

import (
	"context"

	"hindsight/client/logging"
)

const (
	// EventAppended is emitted when a server command is recorded in the journal.
	EventAppended logging.EventType = "history.appended"
	// EventStepped is emitted when the cursor moves by a single entry.
	EventStepped logging.EventType = "history.stepped"
	// EventSeeked is emitted when the cursor jumps to the head of the journal.
	EventSeeked logging.EventType = "history.seeked"
	// EventBoundary is emitted when navigation is requested past either end.
	EventBoundary logging.EventType = "history.boundary"
	// EventCorrupted is emitted when a journal entry cannot be applied or reverted.
	EventCorrupted logging.EventType = "history.corrupted"
)

// Direction names the way the cursor moved.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// AppendedPayload describes a newly recorded command.
type AppendedPayload struct {
	Index    int    `json:"index"`
	Command  string `json:"command"`
	Autoplay bool   `json:"autoplay"`
}

// SteppedPayload describes a single cursor step.
type SteppedPayload struct {
	Direction Direction `json:"direction"`
	Command   string    `json:"command"`
	Length    int       `json:"length"`
}

// SeekedPayload summarises a jump to the head.
type SeekedPayload struct {
	From    int `json:"from"`
	To      int `json:"to"`
	Applied int `json:"applied"`
}

// BoundaryPayload records a navigation request that could not move.
type BoundaryPayload struct {
	Direction Direction `json:"direction"`
	Length    int       `json:"length"`
}

// CorruptedPayload captures the failing entry.
type CorruptedPayload struct {
	Index   int    `json:"index"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

func journalRef() logging.EntityRef {
	return logging.EntityRef{ID: "journal", Kind: logging.EntityKindJournal}
}

// Appended publishes a debug event for a recorded command.
func Appended(ctx context.Context, pub logging.Publisher, cursor uint64, payload AppendedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAppended,
		Cursor:   cursor,
		Actor:    journalRef(),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryHistory,
		Payload:  payload,
		Extra:    extra,
	})
}

// Stepped publishes a debug event for a single cursor step.
func Stepped(ctx context.Context, pub logging.Publisher, cursor uint64, payload SteppedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStepped,
		Cursor:   cursor,
		Actor:    journalRef(),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryHistory,
		Payload:  payload,
		Extra:    extra,
	})
}

// Seeked publishes an info event when the cursor jumps to the head.
func Seeked(ctx context.Context, pub logging.Publisher, cursor uint64, payload SeekedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSeeked,
		Cursor:   cursor,
		Actor:    journalRef(),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryHistory,
		Payload:  payload,
		Extra:    extra,
	})
}

// Boundary publishes a debug event for a navigation request at either end.
func Boundary(ctx context.Context, pub logging.Publisher, cursor uint64, payload BoundaryPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBoundary,
		Cursor:   cursor,
		Actor:    journalRef(),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryHistory,
		Payload:  payload,
		Extra:    extra,
	})
}

// Corrupted publishes an error event for an entry that failed to apply or revert.
func Corrupted(ctx context.Context, pub logging.Publisher, cursor uint64, payload CorruptedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCorrupted,
		Cursor:   cursor,
		Actor:    journalRef(),
		Severity: logging.SeverityError,
		Category: logging.CategoryHistory,
		Payload:  payload,
		Extra:    extra,
	})
}
