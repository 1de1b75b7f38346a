package logging

import (
	"context"
	"time"
)

// EventType names a structured log event, e.g. "history.stepped".
type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// EntityKind classifies the subject of an event.
type EntityKind string

const (
	EntityKindUnknown EntityKind = "unknown"
	EntityKindEntity  EntityKind = "entity"
	EntityKindSession EntityKind = "session"
	EntityKindJournal EntityKind = "journal"
	EntityKindNetwork EntityKind = "network"
)

// Event is a single structured record routed to sinks. Cursor is the journal
// position at the time the event was published.
type Event struct {
	Type      EventType      `json:"type"`
	Cursor    uint64         `json:"cursor"`
	Time      time.Time      `json:"time"`
	Actor     EntityRef      `json:"actor"`
	Targets   []EntityRef    `json:"targets,omitempty"`
	Severity  Severity       `json:"severity"`
	Category  string         `json:"category,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	CommandID string         `json:"commandId,omitempty"`
}

// EntityRef identifies an event subject.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

const (
	CategoryHistory   = "history"
	CategoryNetwork   = "network"
	CategoryLifecycle = "lifecycle"
)

// Publisher accepts events for asynchronous delivery.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function into a Publisher.
type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// NopPublisher discards every event.
func NopPublisher() Publisher {
	return nopPublisher{}
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	if p.next == nil {
		return
	}
	p.next.Publish(ctx, mergeFields(event, p.fields))
}

// mergeFields copies fields into event.Extra without overriding keys the
// event already carries.
func mergeFields(event Event, fields map[string]any) Event {
	if len(fields) == 0 {
		return event
	}
	event = cloneEvent(event)
	if event.Extra == nil {
		event.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, exists := event.Extra[k]; !exists {
			event.Extra[k] = v
		}
	}
	return event
}

func cloneEvent(event Event) Event {
	cloned := event
	if len(event.Targets) > 0 {
		cloned.Targets = append([]EntityRef(nil), event.Targets...)
	}
	if event.Extra != nil {
		copied := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			copied[k] = v
		}
		cloned.Extra = copied
	}
	return cloned
}

// WithFields decorates p so every event carries the provided extra fields.
func WithFields(p Publisher, fields map[string]any) Publisher {
	if p == nil {
		return NopPublisher()
	}
	if len(fields) == 0 {
		return p
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &fieldPublisher{next: p, fields: copied}
}

type sessionPublisher struct {
	next      Publisher
	sessionID string
}

func (p *sessionPublisher) Publish(ctx context.Context, event Event) {
	if p.next == nil {
		return
	}
	if event.SessionID == "" {
		event.SessionID = p.sessionID
	}
	p.next.Publish(ctx, event)
}

// WithSession decorates p so every event is stamped with sessionID.
func WithSession(p Publisher, sessionID string) Publisher {
	if p == nil {
		return NopPublisher()
	}
	if sessionID == "" {
		return p
	}
	return &sessionPublisher{next: p, sessionID: sessionID}
}

// WithExtra returns a copy of the event with key set in Extra.
func (e Event) WithExtra(key string, value any) Event {
	e = cloneEvent(e)
	if e.Extra == nil {
		e.Extra = make(map[string]any, 1)
	}
	e.Extra[key] = value
	return e
}

// Clone returns a copy of the event that shares no slices or maps with e.
func (e Event) Clone() Event {
	return cloneEvent(e)
}
