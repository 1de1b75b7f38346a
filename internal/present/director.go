package present

import (
	"fmt"
	"io"

	"hindsight/client/internal/controller"
)

// Scene names a top-level screen.
type Scene string

const (
	SceneNone    Scene = ""
	SceneConnect Scene = "connect"
	SceneBoot    Scene = "boot"
	SceneMain    Scene = "main"
)

// Stage starts and stops scenes. Data is scene specific.
type Stage interface {
	Start(scene Scene, data any)
	Stop(scene Scene)
}

// Director moves through connect, boot and main as the session progresses.
// Only one scene runs at a time.
type Director struct {
	stage   Stage
	view    View
	current Scene
}

func NewDirector(stage Stage, view View) *Director {
	return &Director{stage: stage, view: view}
}

// Start shows the connect scene for the given session.
func (d *Director) Start(session controller.SessionConfig) {
	d.setScene(SceneConnect, session)
}

func (d *Director) Current() Scene {
	return d.current
}

func (d *Director) HandleEvent(event controller.EventType) {
	switch event {
	case controller.SnapshotLoaded:
		d.setScene(SceneBoot, d.view.GameState().Snapshot())
	case controller.ModelChanged:
		if d.current != SceneMain {
			d.setScene(SceneMain, nil)
		}
	case controller.SessionStateChanged:
		// History stays reviewable in the main scene after disconnecting.
		if d.view.State() == controller.StateDisconnected && d.current != SceneNone && d.current != SceneMain {
			d.stage.Stop(d.current)
			d.current = SceneNone
		}
	}
}

func (d *Director) setScene(scene Scene, data any) {
	if d.current != SceneNone {
		d.stage.Stop(d.current)
	}
	d.stage.Start(scene, data)
	d.current = scene
}

// WriterStage announces scene changes on a writer.
type WriterStage struct {
	Out io.Writer
}

func (s WriterStage) Start(scene Scene, _ any) {
	if s.Out != nil {
		fmt.Fprintf(s.Out, "scene %s\n", scene)
	}
}

func (s WriterStage) Stop(Scene) {}
