package present

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"hindsight/client/internal/controller"
	"hindsight/client/internal/game"
)

type stubNetwork struct{}

func (stubNetwork) Connect(context.Context, controller.Handler, controller.SessionConfig) error {
	return nil
}

func (stubNetwork) Leave() error { return nil }

type recordingStage struct {
	log []string
}

func (s *recordingStage) Start(scene Scene, _ any) { s.log = append(s.log, "start "+string(scene)) }
func (s *recordingStage) Stop(scene Scene)         { s.log = append(s.log, "stop "+string(scene)) }

func TestRender(t *testing.T) {
	c := controller.New(controller.Options{})
	if err := c.EnqueueCommand(game.NewSpawn("B", 2, 3)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := c.EnqueueCommand(game.NewSpawn("A", 0, 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := c.MoveBack(); err != nil {
		t.Fatalf("move back: %v", err)
	}

	got := Render(c)
	want := "turn 0 | 1/2 reviewing\n  B (2,3)\n"
	if got != want {
		t.Fatalf("unexpected render:\n%q\nwant\n%q", got, want)
	}
}

func TestConsoleListens(t *testing.T) {
	var out bytes.Buffer
	c := controller.New(controller.Options{NotifyPending: true})
	c.AddEventListener(NewConsole(&out, c))

	if err := c.EnqueueCommand(game.NewSpawn("A", 1, 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out.String(), "1/1 live") || !strings.Contains(out.String(), "A (1,1)") {
		t.Fatalf("expected projection output, got %q", out.String())
	}

	out.Reset()
	if err := c.MoveBack(); err != nil {
		t.Fatalf("move back: %v", err)
	}
	if err := c.EnqueueCommand(game.NewMove("A", 2, 2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out.String(), "2 new command(s) pending") {
		t.Fatalf("expected pending notice, got %q", out.String())
	}
}

func TestConsoleReportsSessionFailure(t *testing.T) {
	var out bytes.Buffer
	c := controller.New(controller.Options{Network: stubNetwork{}})
	c.AddEventListener(NewConsole(&out, c))
	if err := c.Connect(context.Background(), controller.SessionConfig{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Fail(errors.New("corrupt frame"))

	if !strings.Contains(out.String(), "session disconnected") || !strings.Contains(out.String(), "corrupt frame") {
		t.Fatalf("expected failure report, got %q", out.String())
	}
}

func TestDirectorScenes(t *testing.T) {
	stage := &recordingStage{}
	c := controller.New(controller.Options{Network: stubNetwork{}})
	director := NewDirector(stage, c)
	c.AddEventListener(director)

	session := controller.SessionConfig{User: "ada"}
	director.Start(session)
	if err := c.Connect(context.Background(), session); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.LoadSnapshot(game.Snapshot{Entities: []game.Entity{{ID: "A"}}}); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if director.Current() != SceneBoot {
		t.Fatalf("expected boot scene, got %q", director.Current())
	}
	if err := c.EnqueueCommand(game.NewMove("A", 1, 1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := c.EnqueueCommand(game.NewMove("A", 2, 2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	want := []string{"start connect", "stop connect", "start boot", "stop boot", "start main"}
	if strings.Join(stage.log, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected scene log %v, want %v", stage.log, want)
	}
	if director.Current() != SceneMain {
		t.Fatalf("expected main scene to survive disconnect, got %q", director.Current())
	}
}

func TestDirectorStopsWhenConnectFails(t *testing.T) {
	stage := &recordingStage{}
	c := controller.New(controller.Options{Network: stubNetwork{}})
	director := NewDirector(stage, c)
	c.AddEventListener(director)

	director.Start(controller.SessionConfig{})
	if err := c.Connect(context.Background(), controller.SessionConfig{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	c.Fail(errors.New("bad welcome"))
	if director.Current() != SceneNone {
		t.Fatalf("expected no scene after failure, got %q", director.Current())
	}
	if got := stage.log[len(stage.log)-1]; got != "stop connect" {
		t.Fatalf("expected connect scene to stop, got %v", stage.log)
	}
}

func TestWriterStage(t *testing.T) {
	var out bytes.Buffer
	stage := WriterStage{Out: &out}
	stage.Start(SceneBoot, nil)
	stage.Stop(SceneBoot)
	if out.String() != "scene boot\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
