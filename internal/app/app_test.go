package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"hindsight/client/internal/config"
	"hindsight/client/internal/controller"
	"hindsight/client/internal/net/proto"
	"hindsight/client/internal/telemetry"
)

// scriptedNetwork replays frames to the handler as soon as the session is
// joined.
type scriptedNetwork struct {
	frames  [][]byte
	joined  controller.SessionConfig
	leaves  int
	dialErr error
}

func (n *scriptedNetwork) Connect(_ context.Context, handler controller.Handler, cfg controller.SessionConfig) error {
	if n.dialErr != nil {
		return n.dialErr
	}
	n.joined = cfg
	for _, frame := range n.frames {
		handler.HandleMessage(frame)
	}
	return nil
}

func (n *scriptedNetwork) Leave() error {
	n.leaves++
	return nil
}

func mustFrame(t *testing.T, msgType string, seq uint64, payload any) []byte {
	t.Helper()
	data, err := proto.EncodeServerMessage(msgType, seq, payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return data
}

func testSettings() config.Config {
	return config.Config{
		URL:             "ws://localhost/ws",
		User:            "ada",
		Game:            "g1",
		MailboxCapacity: 64,
		MaxPending:      8,
		LogSinks:        []string{"json"},
		LogLevel:        "debug",
	}
}

func quietLogger() telemetry.Logger {
	return telemetry.WrapLogger(log.New(io.Discard, "", 0))
}

func TestRunReviewsHistory(t *testing.T) {
	network := &scriptedNetwork{frames: [][]byte{
		mustFrame(t, proto.TypeWelcome, 0, proto.WelcomePayload{Entities: []proto.EntityPayload{{ID: "A"}}}),
		mustFrame(t, proto.TypeMove, 1, proto.PositionPayload{ID: "A", X: 1, Y: 1}),
		mustFrame(t, proto.TypeMove, 2, proto.PositionPayload{ID: "A", X: 2, Y: 2}),
	}}
	var out, logs bytes.Buffer
	counters := telemetry.NewCounters()

	err := Run(context.Background(), Config{
		Settings: testSettings(),
		Logger:   quietLogger(),
		In:       strings.NewReader("b\ns\nnonsense\ne\nv\nq\nf\n"),
		Out:      &out,
		LogOut:   &logs,
		Network:  network,
		Metrics:  counters,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if network.joined.User != "ada" || network.joined.Game != "g1" {
		t.Fatalf("unexpected join config: %+v", network.joined)
	}
	if network.leaves != 1 {
		t.Fatalf("expected a single leave, got %d", network.leaves)
	}

	output := out.String()
	for _, want := range []string{
		"scene connect",
		"scene boot",
		"scene main",
		"turn 0 | 1/2 reviewing",
		`unknown intent: "nonsense"`,
		"turn 0 | 2/2 live",
		"projection matches replay",
		"session disconnected",
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output:\n%s", want, output)
		}
	}

	snapshot := counters.Snapshot()
	if snapshot["controller_enqueued_total"] != 2 {
		t.Fatalf("expected 2 enqueued commands, got %v", snapshot)
	}
	if snapshot["controller_navigation_total"] != 2 {
		t.Fatalf("expected 2 navigation steps, got %v", snapshot)
	}
	if !strings.Contains(logs.String(), `"type":"history.appended"`) {
		t.Fatalf("expected json log events, got %s", logs.String())
	}
}

func TestRunReportsCorruptStream(t *testing.T) {
	network := &scriptedNetwork{frames: [][]byte{
		mustFrame(t, proto.TypeMove, 0, proto.PositionPayload{ID: "ghost", X: 1, Y: 1}),
	}}
	var out bytes.Buffer

	// Input never ends on its own; the failure must stop the session.
	reader, writer := io.Pipe()
	defer writer.Close()

	err := Run(context.Background(), Config{
		Settings: testSettings(),
		Logger:   quietLogger(),
		In:       reader,
		Out:      &out,
		LogOut:   io.Discard,
		Network:  network,
	})
	if err == nil {
		t.Fatalf("expected session failure")
	}
	if !strings.Contains(err.Error(), "session failed") {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "session error") {
		t.Fatalf("expected failure to be reported, got %s", out.String())
	}
}

func TestRunConnectFailure(t *testing.T) {
	dialErr := errors.New("refused")
	err := Run(context.Background(), Config{
		Settings: testSettings(),
		Logger:   quietLogger(),
		In:       strings.NewReader(""),
		Out:      io.Discard,
		LogOut:   io.Discard,
		Network:  &scriptedNetwork{dialErr: dialErr},
	})
	if !errors.Is(err, dialErr) {
		t.Fatalf("expected dial error, got %v", err)
	}
}
