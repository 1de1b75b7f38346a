package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"hindsight/client/logging"
)

// Console renders events as single human-readable lines.
type Console struct {
	logger *log.Logger
}

func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{logger: log.New(w, "", log.LstdFlags)}
}

func (s *Console) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	s.logger.Print(FormatLine(event))
	return nil
}

func (s *Console) Close(context.Context) error {
	return nil
}

// FormatLine renders the event without a timestamp.
func FormatLine(event logging.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] cursor=%d actor=%s severity=%s", event.Type, event.Cursor, formatEntity(event.Actor), event.Severity)
	if event.SessionID != "" {
		fmt.Fprintf(&b, " session=%s", event.SessionID)
	}
	b.WriteString(formatTargets(event.Targets))
	b.WriteString(formatPayload(event.Payload))
	return b.String()
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return " targets=" + strings.Join(parts, ",")
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return " payload=" + string(data)
}
