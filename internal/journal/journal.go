package journal

import (
	"errors"
	"fmt"

	"hindsight/client/internal/game"
)

var (
	// ErrAtHead indicates the cursor already reflects every recorded command.
	ErrAtHead = errors.New("journal cursor is at head")
	// ErrAtOrigin indicates the cursor is already before the first command.
	ErrAtOrigin = errors.New("journal cursor is at origin")
	// ErrNilCommand indicates an attempt to append a nil command.
	ErrNilCommand = errors.New("journal command is nil")
)

// Telemetry captures the metrics adapter the journal reports its window to.
type Telemetry interface {
	Store(key string, value uint64)
}

const (
	metricJournalLength = "journal_length"
	metricJournalCursor = "journal_cursor"
)

// Journal is the append-only record of authoritative commands for a session
// plus the cursor selecting how much of it the projection reflects. The
// projection always equals fold(apply, entries[:cursor]).
//
// A Journal is not safe for concurrent use; callers serialise access on the
// session loop.
type Journal struct {
	game      *game.Game
	entries   []*game.Command
	cursor    int
	telemetry Telemetry
}

// Stats describes the journal window for logs and presenters.
type Stats struct {
	Length int  `json:"length"`
	Cursor int  `json:"cursor"`
	Live   bool `json:"live"`
}

// New constructs an empty journal projecting into g.
func New(g *game.Game) *Journal {
	if g == nil {
		g = game.New()
	}
	return &Journal{game: g, entries: make([]*game.Command, 0)}
}

// AttachTelemetry reports length and cursor updates to t.
func (j *Journal) AttachTelemetry(t Telemetry) {
	j.telemetry = t
	j.report()
}

// Game returns the projection the journal mutates.
func (j *Journal) Game() *game.Game {
	return j.game
}

// Append records cmd at the tail and returns its index. The cursor never
// moves on append so history under review is left as it is.
func (j *Journal) Append(cmd *game.Command) (int, error) {
	if cmd == nil {
		return -1, ErrNilCommand
	}
	j.entries = append(j.entries, cmd)
	j.report()
	return len(j.entries) - 1, nil
}

// StepForward applies the command at the cursor and advances past it.
func (j *Journal) StepForward() (*game.Command, error) {
	if j.cursor >= len(j.entries) {
		return nil, ErrAtHead
	}
	cmd := j.entries[j.cursor]
	if err := cmd.Apply(j.game); err != nil {
		return nil, fmt.Errorf("apply entry %d: %w", j.cursor, err)
	}
	j.cursor++
	j.report()
	return cmd, nil
}

// StepBackward reverts the command before the cursor and moves back over it.
func (j *Journal) StepBackward() (*game.Command, error) {
	if j.cursor == 0 {
		return nil, ErrAtOrigin
	}
	cmd := j.entries[j.cursor-1]
	if err := cmd.Revert(j.game); err != nil {
		return nil, fmt.Errorf("revert entry %d: %w", j.cursor-1, err)
	}
	j.cursor--
	j.report()
	return cmd, nil
}

// SeekToEnd applies every command between the cursor and the tail in one
// pass and returns the applied commands. When an entry fails to apply the
// cursor stops in front of it, so the projection still matches the cursor.
func (j *Journal) SeekToEnd() ([]*game.Command, error) {
	if j.cursor >= len(j.entries) {
		return nil, ErrAtHead
	}
	applied := make([]*game.Command, 0, len(j.entries)-j.cursor)
	defer j.report()
	for j.cursor < len(j.entries) {
		cmd := j.entries[j.cursor]
		if err := cmd.Apply(j.game); err != nil {
			return applied, fmt.Errorf("apply entry %d: %w", j.cursor, err)
		}
		applied = append(applied, cmd)
		j.cursor++
	}
	return applied, nil
}

// IsLive reports whether the projection reflects every recorded command.
func (j *Journal) IsLive() bool {
	return j.cursor == len(j.entries)
}

// Cursor reports how many entries the projection reflects.
func (j *Journal) Cursor() int {
	return j.cursor
}

// Len reports the number of recorded entries.
func (j *Journal) Len() int {
	return len(j.entries)
}

// Entry returns the command at index i.
func (j *Journal) Entry(i int) (*game.Command, bool) {
	if i < 0 || i >= len(j.entries) {
		return nil, false
	}
	return j.entries[i], true
}

// Entries returns a copy of the recorded command slice. The commands are
// shared; callers must not apply or revert them.
func (j *Journal) Entries() []*game.Command {
	if len(j.entries) == 0 {
		return nil
	}
	entries := make([]*game.Command, len(j.entries))
	copy(entries, j.entries)
	return entries
}

// Stats reports the current window.
func (j *Journal) Stats() Stats {
	return Stats{Length: len(j.entries), Cursor: j.cursor, Live: j.IsLive()}
}

// Replay rebuilds fold(apply, entries[:cursor]) from a copy of base using
// unapplied clones of the recorded commands. It never touches the live
// projection and is used to verify it.
func (j *Journal) Replay(base *game.Game) (*game.Game, error) {
	var state *game.Game
	if base == nil {
		state = game.New()
	} else {
		state = base.Clone()
	}
	for i := 0; i < j.cursor; i++ {
		if err := j.entries[i].Clone().Apply(state); err != nil {
			return nil, fmt.Errorf("replay entry %d: %w", i, err)
		}
	}
	return state, nil
}

func (j *Journal) report() {
	if j.telemetry == nil {
		return
	}
	j.telemetry.Store(metricJournalLength, uint64(len(j.entries)))
	j.telemetry.Store(metricJournalCursor, uint64(j.cursor))
}
