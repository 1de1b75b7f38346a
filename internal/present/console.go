package present

import (
	"fmt"
	"io"
	"strings"

	"hindsight/client/internal/controller"
)

// Console prints the projection to a writer whenever it changes.
type Console struct {
	out  io.Writer
	view View
}

func NewConsole(out io.Writer, view View) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{out: out, view: view}
}

func (c *Console) HandleEvent(event controller.EventType) {
	switch event {
	case controller.ModelChanged, controller.SnapshotLoaded:
		io.WriteString(c.out, Render(c.view))
	case controller.CommandsPending:
		stats := c.view.History()
		fmt.Fprintf(c.out, "%d new command(s) pending\n", stats.Length-stats.Cursor)
	case controller.SessionStateChanged:
		fmt.Fprintf(c.out, "session %s\n", c.view.State())
		if err := c.view.Err(); err != nil {
			fmt.Fprintf(c.out, "session error: %v\n", err)
		}
	}
}

// Render formats the current projection and history position.
func Render(view View) string {
	stats := view.History()
	mode := "reviewing"
	if stats.Live {
		mode = "live"
	}
	g := view.GameState()

	var b strings.Builder
	fmt.Fprintf(&b, "turn %d | %d/%d %s\n", g.Turn(), stats.Cursor, stats.Length, mode)
	for _, entity := range g.Entities() {
		fmt.Fprintf(&b, "  %s (%d,%d)\n", entity.ID, entity.X, entity.Y)
	}
	return b.String()
}
