package intake

import (
	"context"
	"errors"
	"testing"

	"hindsight/client/internal/controller"
	"hindsight/client/internal/game"
	"hindsight/client/internal/net/proto"
	"hindsight/client/internal/session"
	"hindsight/client/internal/telemetry"
	"hindsight/client/logging"
	"hindsight/client/logging/network"
)

var _ Poster = (*session.Loop)(nil)

type inlinePoster struct {
	stopped bool
}

func (p inlinePoster) Send(_ context.Context, work func()) error {
	if p.stopped {
		return session.ErrLoopStopped
	}
	work()
	return nil
}

func frame(t *testing.T, msgType string, seq uint64, payload any) []byte {
	t.Helper()
	data, err := proto.EncodeServerMessage(msgType, seq, payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return data
}

func TestHandlerDeliversToController(t *testing.T) {
	c := controller.New(controller.Options{})
	h := NewHandler(c, inlinePoster{}, Config{})

	h.HandleMessage(frame(t, proto.TypeWelcome, 0, proto.WelcomePayload{
		Entities: []proto.EntityPayload{{ID: "A", X: 1, Y: 1}},
		Turn:     2,
	}))
	h.HandleMessage(frame(t, proto.TypeMove, 2, proto.PositionPayload{ID: "A", X: 3, Y: 3}))
	h.HandleMessage(frame(t, proto.TypeSpawn, 1, proto.PositionPayload{ID: "B", X: 0, Y: 0}))
	h.HandleMessage(frame(t, proto.TypeTurn, 3, proto.TurnPayload{Number: 3}))

	g := c.GameState()
	if a, _ := g.Entity("A"); a.X != 3 || a.Y != 3 {
		t.Fatalf("expected A at (3,3), got %+v", a)
	}
	if !g.Has("B") || g.Turn() != 3 {
		t.Fatalf("unexpected projection: %+v", g.Snapshot())
	}
	entries := c.Entries()
	if len(entries) != 3 || entries[0].Kind != game.CommandSpawn || entries[1].Kind != game.CommandMove {
		t.Fatalf("expected sequenced order spawn, move, turn; got %v", entries)
	}
	if c.Err() != nil {
		t.Fatalf("unexpected session error: %v", c.Err())
	}
}

func TestHandlerFailsSessionOnDecodeError(t *testing.T) {
	var events []logging.Event
	pub := logging.PublisherFunc(func(_ context.Context, e logging.Event) { events = append(events, e) })
	c := controller.New(controller.Options{})
	h := NewHandler(c, inlinePoster{}, Config{Publisher: pub})

	h.HandleMessage([]byte(`{"type":"move","payload":"nope"}`))
	if !errors.Is(c.Err(), proto.ErrDecode) {
		t.Fatalf("expected decode error, got %v", c.Err())
	}
	if len(events) != 1 || events[0].Type != network.EventDecodeFailed {
		t.Fatalf("expected decode failure event, got %v", events)
	}

	h.HandleMessage(frame(t, proto.TypeSpawn, 0, proto.PositionPayload{ID: "A"}))
	if c.History().Length != 0 {
		t.Fatalf("expected frames after failure to be ignored")
	}
}

func TestHandlerFailsSessionOnSequenceGap(t *testing.T) {
	c := controller.New(controller.Options{})
	h := NewHandler(c, inlinePoster{}, Config{MaxPending: 1})

	h.HandleMessage(frame(t, proto.TypeTurn, 3, proto.TurnPayload{Number: 1}))
	h.HandleMessage(frame(t, proto.TypeTurn, 4, proto.TurnPayload{Number: 2}))
	if !errors.Is(c.Err(), ErrSequenceGap) {
		t.Fatalf("expected sequence gap, got %v", c.Err())
	}
}

func TestHandlerStopsWhenSessionCloses(t *testing.T) {
	c := controller.New(controller.Options{})
	h := NewHandler(c, inlinePoster{}, Config{})
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	h.HandleMessage(frame(t, proto.TypeSpawn, 0, proto.PositionPayload{ID: "A"}))
	if c.History().Length != 0 {
		t.Fatalf("expected closed session to reject commands")
	}
	if c.Err() != nil {
		t.Fatalf("closing is not a failure: %v", c.Err())
	}
}

type recordingSink struct {
	transportErr error
	failed       error
}

func (s *recordingSink) EnqueueCommand(*game.Command) error { return nil }
func (s *recordingSink) LoadSnapshot(game.Snapshot) error   { return nil }
func (s *recordingSink) Fail(err error)                     { s.failed = err }
func (s *recordingSink) HandleTransportFailure(err error)   { s.transportErr = err }

func TestHandlerForwardsClose(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(sink, inlinePoster{}, Config{})
	closeErr := errors.New("eof")
	h.HandleClose(closeErr)
	if sink.transportErr != closeErr {
		t.Fatalf("expected transport failure to be forwarded, got %v", sink.transportErr)
	}
	if sink.failed != nil {
		t.Fatalf("transport failure must not fail the session")
	}
}

func TestHandlerWaitsForMailboxRoom(t *testing.T) {
	c := controller.New(controller.Options{})
	loop := session.NewLoop(session.LoopConfig{Capacity: 2}, nil, nil)
	h := NewHandler(c, loop, Config{})

	frames := [][]byte{
		frame(t, proto.TypeSpawn, 0, proto.PositionPayload{ID: "A"}),
		frame(t, proto.TypeMove, 0, proto.PositionPayload{ID: "A", X: 1, Y: 1}),
		frame(t, proto.TypeMove, 0, proto.PositionPayload{ID: "A", X: 2, Y: 2}),
	}
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for _, f := range frames {
			h.HandleMessage(f)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-loop.Done()
	}()
	go loop.Run(ctx)

	<-sent
	var (
		length int
		a      game.Entity
		err    error
	)
	if doErr := loop.Do(context.Background(), func() {
		length = c.History().Length
		a, _ = c.GameState().Entity("A")
		err = c.Err()
	}); doErr != nil {
		t.Fatalf("do: %v", doErr)
	}
	if length != len(frames) {
		t.Fatalf("expected %d recorded commands, got %d", len(frames), length)
	}
	if a.X != 2 || a.Y != 2 {
		t.Fatalf("expected A at (2,2), got %+v", a)
	}
	if err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}
}

func TestHandlerCountsFramesAfterLoopStops(t *testing.T) {
	counters := telemetry.NewCounters()
	sink := &recordingSink{}
	h := NewHandler(sink, inlinePoster{stopped: true}, Config{Metrics: counters})
	h.HandleMessage([]byte(`{}`))
	h.HandleClose(errors.New("eof"))

	snapshot := counters.Snapshot()
	if snapshot[metricFramesReceived] != 1 || snapshot[metricFramesDropped] != 1 {
		t.Fatalf("unexpected counters: %v", snapshot)
	}
	if sink.transportErr != nil || sink.failed != nil {
		t.Fatalf("stopped loop must not run work")
	}
}
