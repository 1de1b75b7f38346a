package lifecycle

import (
	"context"
	"testing"

	"hindsight/client/logging"
)

func TestStateChanged(t *testing.T) {
	var got []logging.Event
	pub := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		got = append(got, event)
	})

	StateChanged(context.Background(), pub, 4, logging.EntityRef{ID: "ada", Kind: logging.EntityKindSession}, StateChangedPayload{From: "live", To: "reviewing"}, nil)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	event := got[0]
	if event.Type != EventStateChanged || event.Severity != logging.SeverityInfo || event.Category != logging.CategoryLifecycle {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Cursor != 4 {
		t.Fatalf("expected cursor 4, got %d", event.Cursor)
	}
	if payload, ok := event.Payload.(StateChangedPayload); !ok || payload.To != "reviewing" {
		t.Fatalf("unexpected payload: %#v", event.Payload)
	}
}

func TestSessionFailed(t *testing.T) {
	var got logging.Event
	pub := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		got = event
	})

	SessionFailed(context.Background(), pub, 1, logging.EntityRef{Kind: logging.EntityKindSession}, SessionFailedPayload{Error: "decode"}, map[string]any{"fatal": true})
	if got.Type != EventSessionFailed || got.Severity != logging.SeverityError {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Extra["fatal"] != true {
		t.Fatalf("expected extra to be forwarded")
	}

	SessionFailed(context.Background(), nil, 0, logging.EntityRef{}, SessionFailedPayload{}, nil)
}
