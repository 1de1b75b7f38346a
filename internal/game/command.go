package game

import (
	"errors"
	"fmt"
)

// CommandKind enumerates the supported command variants.
type CommandKind string

const (
	CommandMove   CommandKind = "Move"
	CommandSpawn  CommandKind = "Spawn"
	CommandRemove CommandKind = "Remove"
	CommandTurn   CommandKind = "Turn"
)

var (
	// ErrInvalidTarget indicates a command references state that does not
	// exist in the projection. It means the log and the server disagree.
	ErrInvalidTarget = errors.New("command target is invalid")
	// ErrNotYetApplied indicates Revert was called on a command that is not
	// currently applied.
	ErrNotYetApplied = errors.New("command has not been applied")
	// ErrAlreadyApplied indicates Apply was called twice without a Revert.
	ErrAlreadyApplied = errors.New("command is already applied")
	// ErrMalformedCommand indicates the kind and payload do not agree.
	ErrMalformedCommand = errors.New("command is malformed")
)

// TargetError describes a command that could not be applied against the
// current projection.
type TargetError struct {
	Kind     CommandKind
	EntityID string
	Reason   string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Kind, e.EntityID, e.Reason)
}

// Unwrap lets callers match the error with errors.Is(err, ErrInvalidTarget).
func (e *TargetError) Unwrap() error {
	return ErrInvalidTarget
}

// MoveCommand relocates an existing entity.
type MoveCommand struct {
	EntityID string `json:"entityId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// SpawnCommand introduces a new entity.
type SpawnCommand struct {
	EntityID string `json:"entityId"`
	X        int    `json:"x"`
	Y        int    `json:"y"`
}

// RemoveCommand deletes an existing entity.
type RemoveCommand struct {
	EntityID string `json:"entityId"`
}

// TurnCommand advances the turn counter.
type TurnCommand struct {
	Number int `json:"number"`
}

// Command is a single authoritative change to the projection. Exactly one
// payload pointer is set and it matches Kind.
type Command struct {
	Kind   CommandKind
	Move   *MoveCommand
	Spawn  *SpawnCommand
	Remove *RemoveCommand
	Turn   *TurnCommand

	triggerModelChanged bool
	applied             bool
	pre                 preimage
}

// preimage records only the fields a command overwrites.
type preimage struct {
	captured bool
	x, y     int
	entity   Entity
	turn     int
}

// NewMove constructs a move command that notifies listeners when applied.
func NewMove(entityID string, x, y int) *Command {
	return &Command{
		Kind:                CommandMove,
		Move:                &MoveCommand{EntityID: entityID, X: x, Y: y},
		triggerModelChanged: true,
	}
}

// NewSpawn constructs a spawn command that notifies listeners when applied.
func NewSpawn(entityID string, x, y int) *Command {
	return &Command{
		Kind:                CommandSpawn,
		Spawn:               &SpawnCommand{EntityID: entityID, X: x, Y: y},
		triggerModelChanged: true,
	}
}

// NewRemove constructs a remove command that notifies listeners when applied.
func NewRemove(entityID string) *Command {
	return &Command{
		Kind:                CommandRemove,
		Remove:              &RemoveCommand{EntityID: entityID},
		triggerModelChanged: true,
	}
}

// NewTurn constructs a turn command. Turn bookkeeping is not rendered so it
// does not notify listeners by default.
func NewTurn(number int) *Command {
	return &Command{
		Kind: CommandTurn,
		Turn: &TurnCommand{Number: number},
	}
}

// WithTrigger returns an unapplied copy of the command with
// TriggerModelChanged set to trigger. The receiver is not modified.
func (c *Command) WithTrigger(trigger bool) *Command {
	cloned := c.Clone()
	if cloned != nil {
		cloned.triggerModelChanged = trigger
	}
	return cloned
}

// TriggerModelChanged reports whether applying the command is externally
// observable.
func (c *Command) TriggerModelChanged() bool {
	return c != nil && c.triggerModelChanged
}

// Applied reports whether the command is currently reflected in a projection.
func (c *Command) Applied() bool {
	return c != nil && c.applied
}

// Target returns the entity id referenced by the command, if any.
func (c *Command) Target() string {
	if c == nil {
		return ""
	}
	switch c.Kind {
	case CommandMove:
		if c.Move != nil {
			return c.Move.EntityID
		}
	case CommandSpawn:
		if c.Spawn != nil {
			return c.Spawn.EntityID
		}
	case CommandRemove:
		if c.Remove != nil {
			return c.Remove.EntityID
		}
	}
	return ""
}

// Validate checks that the kind and payload agree.
func (c *Command) Validate() error {
	if c == nil {
		return fmt.Errorf("nil command: %w", ErrMalformedCommand)
	}
	switch c.Kind {
	case CommandMove:
		if c.Move == nil || c.Move.EntityID == "" {
			return fmt.Errorf("%s requires an entity: %w", c.Kind, ErrMalformedCommand)
		}
	case CommandSpawn:
		if c.Spawn == nil || c.Spawn.EntityID == "" {
			return fmt.Errorf("%s requires an entity: %w", c.Kind, ErrMalformedCommand)
		}
	case CommandRemove:
		if c.Remove == nil || c.Remove.EntityID == "" {
			return fmt.Errorf("%s requires an entity: %w", c.Kind, ErrMalformedCommand)
		}
	case CommandTurn:
		if c.Turn == nil {
			return fmt.Errorf("%s requires a turn number: %w", c.Kind, ErrMalformedCommand)
		}
	default:
		return fmt.Errorf("unknown kind %q: %w", c.Kind, ErrMalformedCommand)
	}
	return nil
}

// Apply mutates the projection. The target is validated before anything is
// written so a failed Apply leaves g untouched. The preimage is captured on
// the first successful Apply and reused afterwards.
func (c *Command) Apply(g *Game) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.applied {
		return fmt.Errorf("%s: %w", c.Kind, ErrAlreadyApplied)
	}
	switch c.Kind {
	case CommandMove:
		entity, ok := g.Entity(c.Move.EntityID)
		if !ok {
			return &TargetError{Kind: c.Kind, EntityID: c.Move.EntityID, Reason: "entity does not exist"}
		}
		if !c.pre.captured {
			c.pre = preimage{captured: true, x: entity.X, y: entity.Y}
		}
		g.Move(c.Move.EntityID, c.Move.X, c.Move.Y)
	case CommandSpawn:
		if g.Has(c.Spawn.EntityID) {
			return &TargetError{Kind: c.Kind, EntityID: c.Spawn.EntityID, Reason: "entity already exists"}
		}
		if !c.pre.captured {
			c.pre = preimage{captured: true}
		}
		g.Spawn(c.Spawn.EntityID, c.Spawn.X, c.Spawn.Y)
	case CommandRemove:
		entity, ok := g.Entity(c.Remove.EntityID)
		if !ok {
			return &TargetError{Kind: c.Kind, EntityID: c.Remove.EntityID, Reason: "entity does not exist"}
		}
		if !c.pre.captured {
			c.pre = preimage{captured: true, entity: entity}
		}
		g.Remove(c.Remove.EntityID)
	case CommandTurn:
		if !c.pre.captured {
			c.pre = preimage{captured: true, turn: g.Turn()}
		}
		g.SetTurn(c.Turn.Number)
	}
	c.applied = true
	return nil
}

// Revert restores the state captured by the last Apply.
func (c *Command) Revert(g *Game) error {
	if c == nil || !c.applied || !c.pre.captured {
		kind := CommandKind("")
		if c != nil {
			kind = c.Kind
		}
		return fmt.Errorf("revert %s: %w", kind, ErrNotYetApplied)
	}
	switch c.Kind {
	case CommandMove:
		g.Move(c.Move.EntityID, c.pre.x, c.pre.y)
	case CommandSpawn:
		g.Remove(c.Spawn.EntityID)
	case CommandRemove:
		g.Spawn(c.pre.entity.ID, c.pre.entity.X, c.pre.entity.Y)
	case CommandTurn:
		g.SetTurn(c.pre.turn)
	}
	c.applied = false
	return nil
}

// Clone returns an unapplied copy of the command with its own payload and no
// captured preimage.
func (c *Command) Clone() *Command {
	if c == nil {
		return nil
	}
	cloned := &Command{Kind: c.Kind, triggerModelChanged: c.triggerModelChanged}
	if c.Move != nil {
		move := *c.Move
		cloned.Move = &move
	}
	if c.Spawn != nil {
		spawn := *c.Spawn
		cloned.Spawn = &spawn
	}
	if c.Remove != nil {
		remove := *c.Remove
		cloned.Remove = &remove
	}
	if c.Turn != nil {
		turn := *c.Turn
		cloned.Turn = &turn
	}
	return cloned
}

// String renders a short description for logs and the console presenter.
func (c *Command) String() string {
	if c == nil {
		return "<nil>"
	}
	switch c.Kind {
	case CommandMove:
		if c.Move != nil {
			return fmt.Sprintf("Move(%s→(%d,%d))", c.Move.EntityID, c.Move.X, c.Move.Y)
		}
	case CommandSpawn:
		if c.Spawn != nil {
			return fmt.Sprintf("Spawn(%s@(%d,%d))", c.Spawn.EntityID, c.Spawn.X, c.Spawn.Y)
		}
	case CommandRemove:
		if c.Remove != nil {
			return fmt.Sprintf("Remove(%s)", c.Remove.EntityID)
		}
	case CommandTurn:
		if c.Turn != nil {
			return fmt.Sprintf("Turn(%d)", c.Turn.Number)
		}
	}
	return string(c.Kind)
}
