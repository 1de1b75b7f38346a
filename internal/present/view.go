package present

import (
	"hindsight/client/internal/controller"
	"hindsight/client/internal/game"
	"hindsight/client/internal/journal"
)

// View is the read-only controller surface presenters render from.
type View interface {
	GameState() *game.Game
	History() journal.Stats
	State() controller.State
	Err() error
}
