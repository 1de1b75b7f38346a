package controller

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hindsight/client/internal/game"
	"hindsight/client/internal/journal"
	"hindsight/client/internal/telemetry"
	"hindsight/client/logging"
	"hindsight/client/logging/history"
	"hindsight/client/logging/lifecycle"
	"hindsight/client/logging/network"
)

var (
	// ErrSessionClosed is returned when a command arrives after the session
	// was disconnected or failed.
	ErrSessionClosed = errors.New("session closed")
	// ErrHistoryStarted is returned when a snapshot is loaded after the
	// journal recorded its first command.
	ErrHistoryStarted = errors.New("history already started")
	// ErrNoNetwork is returned by Connect when no Network was configured.
	ErrNoNetwork = errors.New("no network configured")
	// ErrAlreadyConnected is returned by Connect on a connected session.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrProjectionDiverged is returned by Verify when replaying the journal
	// does not reproduce the live projection.
	ErrProjectionDiverged = errors.New("projection diverged from journal replay")
)

const (
	metricEnqueued      = "controller_enqueued_total"
	metricNotifications = "controller_notifications_total"
	metricNavigation    = "controller_navigation_total"
	metricFatal         = "controller_fatal_total"
)

// Handler receives raw frames and connection loss from a Network.
type Handler interface {
	HandleMessage(data []byte)
	HandleClose(err error)
}

// Network joins and leaves a game session. Connect returns once the session
// is joined; frames are then delivered to handler until Leave.
type Network interface {
	Connect(ctx context.Context, handler Handler, cfg SessionConfig) error
	Leave() error
}

// Options configures a Controller. Every field is optional.
type Options struct {
	Network Network
	// HandlerFactory builds the Handler passed to Network.Connect.
	HandlerFactory func(*Controller) Handler
	Publisher      logging.Publisher
	Logger         telemetry.Logger
	Metrics        telemetry.Metrics
	Tracer         trace.Tracer
	// NotifyPending emits CommandsPending for commands recorded while
	// reviewing history.
	NotifyPending bool
}

// Controller mediates between inbound commands, user navigation and the
// listeners observing the projection. It is not safe for concurrent use;
// every method must run on the session loop.
type Controller struct {
	game    *game.Game
	base    *game.Game
	journal *journal.Journal

	listeners []EventListener

	network        Network
	handlerFactory func(*Controller) Handler
	publisher      logging.Publisher
	logger         telemetry.Logger
	metrics        telemetry.Metrics
	tracer         trace.Tracer
	notifyPending  bool

	actor     logging.EntityRef
	traceCtx  context.Context
	connected bool
	delivered bool
	closed    bool
	state     State
	err       error
}

// New constructs a controller over an empty game.
func New(opts Options) *Controller {
	g := game.New()
	c := &Controller{
		game:           g,
		base:           g.Clone(),
		journal:        journal.New(g),
		network:        opts.Network,
		handlerFactory: opts.HandlerFactory,
		publisher:      opts.Publisher,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		tracer:         opts.Tracer,
		notifyPending:  opts.NotifyPending,
		actor:          logging.EntityRef{Kind: logging.EntityKindSession},
		traceCtx:       context.Background(),
		state:          StateDisconnected,
	}
	if c.publisher == nil {
		c.publisher = logging.NopPublisher()
	}
	if c.logger == nil {
		c.logger = telemetry.LoggerFunc(nil)
	}
	if c.metrics == nil {
		c.metrics = telemetry.NopMetrics()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("hindsight/client/internal/controller")
	}
	c.journal.AttachTelemetry(c.metrics)
	return c
}

// GameState returns the projection. Callers must treat it as read-only.
func (c *Controller) GameState() *game.Game {
	return c.game
}

// History reports the journal length and cursor.
func (c *Controller) History() journal.Stats {
	return c.journal.Stats()
}

// Entries returns the recorded commands in arrival order.
func (c *Controller) Entries() []*game.Command {
	return c.journal.Entries()
}

func (c *Controller) State() State {
	return c.state
}

// Err returns the error that ended the session, if any.
func (c *Controller) Err() error {
	return c.err
}

// AddEventListener registers l for future notifications.
func (c *Controller) AddEventListener(l EventListener) {
	if l == nil {
		return
	}
	c.listeners = append(c.listeners, l)
}

// RemoveEventListener unregisters l and reports whether it was registered.
// Listeners of non-comparable types, such as ListenerFunc, cannot be removed.
func (c *Controller) RemoveEventListener(l EventListener) bool {
	for i, registered := range c.listeners {
		if sameListener(registered, l) {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// LoadSnapshot replaces the initial game state. It is only valid before the
// first command is recorded.
func (c *Controller) LoadSnapshot(snapshot game.Snapshot) error {
	if c.journal.Len() > 0 {
		return ErrHistoryStarted
	}
	c.game.Restore(snapshot)
	c.base = c.game.Clone()
	c.notify(SnapshotLoaded)
	return nil
}

// EnqueueCommand records cmd and, when the journal was live before the
// append, applies it immediately. ModelChanged is emitted once if the applied
// command triggers it. Commands recorded while reviewing stay pending until
// the user navigates over them.
func (c *Controller) EnqueueCommand(cmd *game.Command) error {
	if c.closed {
		return ErrSessionClosed
	}
	wasLive := c.journal.IsLive()
	index, err := c.journal.Append(cmd)
	if err != nil {
		return err
	}
	c.delivered = true
	c.metrics.Add(metricEnqueued, 1)
	history.Appended(c.traceCtx, c.publisher, c.cursor(), history.AppendedPayload{
		Index:    index,
		Command:  cmd.String(),
		Autoplay: wasLive,
	}, nil)

	if !wasLive {
		if c.notifyPending {
			c.notify(CommandsPending)
		}
		c.syncState()
		return nil
	}

	if _, err := c.journal.StepForward(); err != nil {
		c.corrupted(index, cmd, err)
		return err
	}
	if cmd.TriggerModelChanged() {
		c.notify(ModelChanged)
	}
	c.syncState()
	return nil
}

// MoveForward applies the next recorded command. At the head it does
// nothing.
func (c *Controller) MoveForward() error {
	index := c.journal.Cursor()
	cmd, err := c.journal.StepForward()
	if errors.Is(err, journal.ErrAtHead) {
		c.boundary(history.DirectionForward)
		return nil
	}
	if err != nil {
		entry, _ := c.journal.Entry(index)
		c.corrupted(index, entry, err)
		return err
	}
	c.stepped(history.DirectionForward, cmd)
	if cmd.TriggerModelChanged() {
		c.notify(ModelChanged)
	}
	c.syncState()
	return nil
}

// MoveBack reverts the last applied command. At the origin it does nothing.
func (c *Controller) MoveBack() error {
	index := c.journal.Cursor() - 1
	cmd, err := c.journal.StepBackward()
	if errors.Is(err, journal.ErrAtOrigin) {
		c.boundary(history.DirectionBackward)
		return nil
	}
	if err != nil {
		entry, _ := c.journal.Entry(index)
		c.corrupted(index, entry, err)
		return err
	}
	c.stepped(history.DirectionBackward, cmd)
	if cmd.TriggerModelChanged() {
		c.notify(ModelChanged)
	}
	c.syncState()
	return nil
}

// MoveToEnd applies every pending command and emits at most one
// ModelChanged.
func (c *Controller) MoveToEnd() error {
	from := c.journal.Cursor()
	applied, err := c.journal.SeekToEnd()
	if errors.Is(err, journal.ErrAtHead) {
		c.boundary(history.DirectionForward)
		return nil
	}
	c.metrics.Add(metricNavigation, 1)
	history.Seeked(c.traceCtx, c.publisher, c.cursor(), history.SeekedPayload{
		From:    from,
		To:      c.journal.Cursor(),
		Applied: len(applied),
	}, nil)
	if anyTriggers(applied) {
		c.notify(ModelChanged)
	}
	if err != nil {
		index := c.journal.Cursor()
		entry, _ := c.journal.Entry(index)
		c.corrupted(index, entry, err)
		return err
	}
	c.syncState()
	return nil
}

// Verify replays the journal from the initial state and compares the result
// with the live projection.
func (c *Controller) Verify() error {
	replayed, err := c.journal.Replay(c.base)
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	if !replayed.Equal(c.game) {
		return ErrProjectionDiverged
	}
	return nil
}

// Connect joins a session through the configured Network. Commands are
// accepted again after a previous Disconnect.
func (c *Controller) Connect(ctx context.Context, cfg SessionConfig) error {
	if c.network == nil {
		return ErrNoNetwork
	}
	if c.connected {
		return ErrAlreadyConnected
	}
	ctx, span := c.tracer.Start(ctx, "session.connect", trace.WithAttributes(
		attribute.String("session.url", cfg.URL),
		attribute.String("session.user", cfg.User),
		attribute.String("session.game", cfg.Game),
	))
	defer span.End()

	c.actor = logging.EntityRef{ID: cfg.User, Kind: logging.EntityKindSession}
	c.traceCtx = trace.ContextWithSpanContext(context.Background(), span.SpanContext())
	c.connected = true
	c.delivered = false
	c.closed = false
	c.err = nil
	c.syncState()

	var handler Handler
	if c.handlerFactory != nil {
		handler = c.handlerFactory(c)
	}
	if err := c.network.Connect(ctx, handler, cfg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		c.connected = false
		c.syncState()
		return fmt.Errorf("connect: %w", err)
	}
	network.Connected(c.traceCtx, c.publisher, c.cursor(), c.actor, network.ConnectedPayload{
		URL:  cfg.URL,
		User: cfg.User,
		Game: cfg.Game,
	}, nil)
	return nil
}

// Disconnect leaves the session. Recorded history stays navigable; commands
// delivered afterwards are rejected.
func (c *Controller) Disconnect() error {
	c.closed = true
	if !c.connected {
		return nil
	}
	c.connected = false
	err := c.network.Leave()
	network.Disconnected(c.traceCtx, c.publisher, c.cursor(), c.actor, network.DisconnectedPayload{Reason: "leave"}, nil)
	c.syncState()
	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	return nil
}

// HandleTransportFailure records that the connection dropped. The journal is
// left untouched.
func (c *Controller) HandleTransportFailure(err error) {
	if !c.connected {
		return
	}
	c.connected = false
	c.closed = true
	payload := network.FailurePayload{}
	if err != nil {
		payload.Error = err.Error()
	}
	network.TransportFailed(c.traceCtx, c.publisher, c.cursor(), c.actor, payload, nil)
	c.logger.Printf("[session] transport failed: %v", err)
	if leaveErr := c.network.Leave(); leaveErr != nil {
		c.logger.Printf("[session] leave after transport failure: %v", leaveErr)
	}
	c.syncState()
}

// Fail ends the session with a fatal error. Only the first error is kept.
func (c *Controller) Fail(err error) {
	if err == nil {
		return
	}
	if c.err != nil {
		return
	}
	c.err = err
	c.closed = true
	c.metrics.Add(metricFatal, 1)

	_, span := c.tracer.Start(c.traceCtx, "session.fail")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()

	lifecycle.SessionFailed(c.traceCtx, c.publisher, c.cursor(), c.actor, lifecycle.SessionFailedPayload{Error: err.Error()}, nil)
	c.logger.Printf("[session] fatal: %v", err)

	if c.connected {
		c.connected = false
		if leaveErr := c.network.Leave(); leaveErr != nil {
			c.logger.Printf("[session] leave after failure: %v", leaveErr)
		}
	}
	c.syncState()
}

func (c *Controller) corrupted(index int, cmd *game.Command, err error) {
	payload := history.CorruptedPayload{Index: index, Error: err.Error()}
	if cmd != nil {
		payload.Command = cmd.String()
	}
	history.Corrupted(c.traceCtx, c.publisher, c.cursor(), payload, nil)
	c.Fail(err)
}

func (c *Controller) stepped(direction history.Direction, cmd *game.Command) {
	c.metrics.Add(metricNavigation, 1)
	history.Stepped(c.traceCtx, c.publisher, c.cursor(), history.SteppedPayload{
		Direction: direction,
		Command:   cmd.String(),
		Length:    c.journal.Len(),
	}, nil)
}

func (c *Controller) boundary(direction history.Direction) {
	history.Boundary(c.traceCtx, c.publisher, c.cursor(), history.BoundaryPayload{
		Direction: direction,
		Length:    c.journal.Len(),
	}, nil)
}

func (c *Controller) notify(event EventType) {
	if len(c.listeners) == 0 {
		return
	}
	c.metrics.Add(metricNotifications, 1)
	listeners := append([]EventListener(nil), c.listeners...)
	for _, l := range listeners {
		l.HandleEvent(event)
	}
}

func (c *Controller) syncState() {
	next := c.deriveState()
	if next == c.state {
		return
	}
	previous := c.state
	c.state = next
	lifecycle.StateChanged(c.traceCtx, c.publisher, c.cursor(), c.actor, lifecycle.StateChangedPayload{
		From: previous.String(),
		To:   next.String(),
	}, nil)
	c.notify(SessionStateChanged)
}

func (c *Controller) deriveState() State {
	switch {
	case !c.connected:
		return StateDisconnected
	case !c.delivered:
		return StateConnecting
	case c.journal.IsLive():
		return StateLive
	default:
		return StateReviewing
	}
}

func (c *Controller) cursor() uint64 {
	return uint64(c.journal.Cursor())
}

func anyTriggers(cmds []*game.Command) bool {
	for _, cmd := range cmds {
		if cmd.TriggerModelChanged() {
			return true
		}
	}
	return false
}
