package network

import (
	"context"

	"hindsight/client/logging"
)

const (
	// EventConnected is emitted once the transport has joined the game.
	EventConnected logging.EventType = "network.connected"
	// EventDisconnected is emitted when the client leaves the game.
	EventDisconnected logging.EventType = "network.disconnected"
	// EventDecodeFailed is emitted when an inbound frame cannot be decoded.
	EventDecodeFailed logging.EventType = "network.decode_failed"
	// EventTransportFailed is emitted when the connection drops unexpectedly.
	EventTransportFailed logging.EventType = "network.transport_failed"
	// EventSequenceGap is emitted when buffered out-of-order messages exceed the limit.
	EventSequenceGap logging.EventType = "network.sequence_gap"
	// EventReordered is emitted when a message arrives ahead of its predecessors.
	EventReordered logging.EventType = "network.reordered"
)

// ConnectedPayload describes the joined session.
type ConnectedPayload struct {
	URL      string `json:"url"`
	User     string `json:"user"`
	Game     string `json:"game"`
	Attempts int    `json:"attempts"`
}

// DisconnectedPayload captures why the client left.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
}

// FailurePayload captures a transport or decoding error.
type FailurePayload struct {
	Error string `json:"error"`
	Size  int    `json:"size,omitempty"`
}

// SequencePayload describes buffered out-of-order delivery.
type SequencePayload struct {
	Expected uint64 `json:"expected"`
	Received uint64 `json:"received"`
	Pending  int    `json:"pending"`
}

// Connected publishes an info event when the session is joined.
func Connected(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload ConnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventConnected,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// Disconnected publishes an info event when the session is left.
func Disconnected(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload DisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDisconnected,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// DecodeFailed publishes an error event for an undecodable frame.
func DecodeFailed(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload FailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDecodeFailed,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// TransportFailed publishes a warning when the connection drops.
func TransportFailed(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload FailurePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTransportFailed,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// SequenceGap publishes an error event when the reorder buffer overflows.
func SequenceGap(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload SequencePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSequenceGap,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// Reordered publishes a debug event when a message is held for reordering.
func Reordered(ctx context.Context, pub logging.Publisher, cursor uint64, actor logging.EntityRef, payload SequencePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventReordered,
		Cursor:   cursor,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
