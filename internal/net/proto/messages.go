package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hindsight/client/internal/game"
)

const (
	// Version tracks the wire-protocol revision this client speaks.
	Version = 1
)

// Server message type identifiers.
const (
	TypeWelcome = "welcome"
	TypeMove    = "move"
	TypeSpawn   = "spawn"
	TypeRemove  = "remove"
	TypeTurn    = "turn"
)

// Client message type identifiers.
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
)

// ErrDecode matches every *DecodeError.
var ErrDecode = errors.New("decode server message")

// DecodeError reports a frame that could not be turned into a command or
// snapshot. It is fatal to the session.
type DecodeError struct {
	Type string
	Seq  uint64
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode server message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s message (seq %d): %v", e.Type, e.Seq, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// ServerMessage is the envelope for every server frame. Seq is the server's
// ordering sequence; zero means unsequenced. Notify overrides the command's
// default TriggerModelChanged.
type ServerMessage struct {
	Ver     int             `json:"ver,omitempty"`
	Type    string          `json:"type" jsonschema:"enum=welcome,enum=move,enum=spawn,enum=remove,enum=turn"`
	Seq     uint64          `json:"seq,omitempty"`
	Notify  *bool           `json:"notify,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EntityPayload describes one entity in a welcome snapshot.
type EntityPayload struct {
	ID string `json:"id" jsonschema:"required"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

// WelcomePayload carries the game state at the moment the client joined.
type WelcomePayload struct {
	Entities []EntityPayload `json:"entities"`
	Turn     int             `json:"turn"`
}

// PositionPayload is shared by move and spawn.
type PositionPayload struct {
	ID string `json:"id" jsonschema:"required"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
}

type RemovePayload struct {
	ID string `json:"id" jsonschema:"required"`
}

type TurnPayload struct {
	Number int `json:"number"`
}

// DecodeServerMessage parses a raw frame into an envelope and checks the
// protocol version.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, &DecodeError{Err: err}
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, &DecodeError{Type: msg.Type, Seq: msg.Seq, Err: fmt.Errorf("unsupported server protocol version %d", msg.Ver)}
	}
	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return msg, &DecodeError{Seq: msg.Seq, Err: errors.New("missing message type")}
	}
	return msg, nil
}

// IsSnapshot reports whether msg carries initial state rather than a command.
func IsSnapshot(msg ServerMessage) bool {
	return msg.Type == TypeWelcome
}

// Snapshot converts a welcome message into game state.
func Snapshot(msg ServerMessage) (game.Snapshot, error) {
	if msg.Type != TypeWelcome {
		return game.Snapshot{}, msg.fail(errors.New("not a snapshot"))
	}
	var payload WelcomePayload
	if err := msg.decodePayload(&payload); err != nil {
		return game.Snapshot{}, err
	}
	snapshot := game.Snapshot{Turn: payload.Turn}
	seen := make(map[string]struct{}, len(payload.Entities))
	for _, entity := range payload.Entities {
		if entity.ID == "" {
			return game.Snapshot{}, msg.fail(errors.New("entity without id"))
		}
		if _, dup := seen[entity.ID]; dup {
			return game.Snapshot{}, msg.fail(fmt.Errorf("duplicate entity %q", entity.ID))
		}
		seen[entity.ID] = struct{}{}
		snapshot.Entities = append(snapshot.Entities, game.Entity{ID: entity.ID, X: entity.X, Y: entity.Y})
	}
	return snapshot, nil
}

// Command converts a command message into exactly one game command.
func Command(msg ServerMessage) (*game.Command, error) {
	var cmd *game.Command
	switch msg.Type {
	case TypeMove:
		var payload PositionPayload
		if err := msg.decodePayload(&payload); err != nil {
			return nil, err
		}
		cmd = game.NewMove(payload.ID, payload.X, payload.Y)
	case TypeSpawn:
		var payload PositionPayload
		if err := msg.decodePayload(&payload); err != nil {
			return nil, err
		}
		cmd = game.NewSpawn(payload.ID, payload.X, payload.Y)
	case TypeRemove:
		var payload RemovePayload
		if err := msg.decodePayload(&payload); err != nil {
			return nil, err
		}
		cmd = game.NewRemove(payload.ID)
	case TypeTurn:
		var payload TurnPayload
		if err := msg.decodePayload(&payload); err != nil {
			return nil, err
		}
		cmd = game.NewTurn(payload.Number)
	default:
		return nil, msg.fail(fmt.Errorf("unknown message type %q", msg.Type))
	}
	if msg.Notify != nil {
		cmd = cmd.WithTrigger(*msg.Notify)
	}
	if err := cmd.Validate(); err != nil {
		return nil, msg.fail(err)
	}
	return cmd, nil
}

func (m ServerMessage) decodePayload(dst any) error {
	if len(m.Payload) == 0 {
		return m.fail(errors.New("missing payload"))
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return m.fail(err)
	}
	return nil
}

func (m ServerMessage) fail(err error) error {
	return &DecodeError{Type: m.Type, Seq: m.Seq, Err: err}
}

// ClientMessage is sent by the client to join or leave a game.
type ClientMessage struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	User string `json:"user,omitempty"`
	Auth string `json:"auth,omitempty"`
	Game string `json:"game,omitempty"`
}

// NewJoin builds the join request for a session.
func NewJoin(user, auth, gameID string) ClientMessage {
	return ClientMessage{Ver: Version, Type: TypeJoin, User: user, Auth: auth, Game: gameID}
}

// NewLeave builds the leave notice for a session.
func NewLeave(user, gameID string) ClientMessage {
	return ClientMessage{Ver: Version, Type: TypeLeave, User: user, Game: gameID}
}

// EncodeClientMessage renders msg for the wire.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	return json.Marshal(msg)
}

// EncodeServerMessage renders a server frame. The client never sends these;
// tests and local tooling use it to script a server.
func EncodeServerMessage(msgType string, seq uint64, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ServerMessage{Ver: Version, Type: msgType, Seq: seq, Payload: raw})
}
