package game

import "sort"

// Entity captures the projected state of a single board piece.
type Entity struct {
	ID string `json:"id"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// Snapshot is a detached, ordered copy of the projection. Servers send one on
// join so the client starts from the same pre-session state.
type Snapshot struct {
	Entities []Entity `json:"entities"`
	Turn     int      `json:"turn"`
}

// Game is the mutable projection of the session. It owns no history; the
// journal is the only component that mutates it at runtime.
type Game struct {
	entities map[string]Entity
	turn     int
}

// New constructs an empty projection.
func New() *Game {
	return &Game{entities: make(map[string]Entity)}
}

// FromSnapshot constructs a projection seeded with the snapshot contents.
func FromSnapshot(s Snapshot) *Game {
	g := New()
	g.Restore(s)
	return g
}

// Restore replaces the projection with the snapshot contents.
func (g *Game) Restore(s Snapshot) {
	g.entities = make(map[string]Entity, len(s.Entities))
	for _, e := range s.Entities {
		if e.ID == "" {
			continue
		}
		g.entities[e.ID] = e
	}
	g.turn = s.Turn
}

// Spawn places a new entity at the given coordinate.
func (g *Game) Spawn(id string, x, y int) {
	g.entities[id] = Entity{ID: id, X: x, Y: y}
}

// Move relocates an entity. Unknown ids are ignored; commands validate
// targets before calling mutation primitives.
func (g *Game) Move(id string, x, y int) {
	entity, ok := g.entities[id]
	if !ok {
		return
	}
	entity.X = x
	entity.Y = y
	g.entities[id] = entity
}

// Remove deletes an entity and returns its last state.
func (g *Game) Remove(id string) (Entity, bool) {
	entity, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	delete(g.entities, id)
	return entity, true
}

// SetTurn records the active turn number.
func (g *Game) SetTurn(turn int) {
	g.turn = turn
}

// Turn reports the active turn number.
func (g *Game) Turn() int {
	return g.turn
}

// Entity returns the entity with the provided id.
func (g *Game) Entity(id string) (Entity, bool) {
	entity, ok := g.entities[id]
	return entity, ok
}

// Has reports whether the entity exists in the projection.
func (g *Game) Has(id string) bool {
	_, ok := g.entities[id]
	return ok
}

// Len reports the number of entities in the projection.
func (g *Game) Len() int {
	return len(g.entities)
}

// Entities returns the entities ordered by id.
func (g *Game) Entities() []Entity {
	entities := make([]Entity, 0, len(g.entities))
	for _, e := range g.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
	return entities
}

// Snapshot returns a detached copy of the projection.
func (g *Game) Snapshot() Snapshot {
	return Snapshot{Entities: g.Entities(), Turn: g.turn}
}

// Clone returns a deep copy of the projection.
func (g *Game) Clone() *Game {
	cloned := &Game{entities: make(map[string]Entity, len(g.entities)), turn: g.turn}
	for id, e := range g.entities {
		cloned.entities[id] = e
	}
	return cloned
}

// Equal reports whether both projections hold the same entities and turn.
func (g *Game) Equal(other *Game) bool {
	if g == nil || other == nil {
		return g == other
	}
	if g.turn != other.turn || len(g.entities) != len(other.entities) {
		return false
	}
	for id, e := range g.entities {
		if o, ok := other.entities[id]; !ok || o != e {
			return false
		}
	}
	return true
}
