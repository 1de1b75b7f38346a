package intake

import (
	"context"
	"errors"

	"hindsight/client/internal/controller"
	"hindsight/client/internal/game"
	"hindsight/client/internal/net/proto"
	"hindsight/client/internal/telemetry"
	"hindsight/client/logging"
	"hindsight/client/logging/network"
)

const (
	metricFramesReceived = "intake_frames_received_total"
	metricFramesDropped  = "intake_frames_dropped_total"
	metricPendingFrames  = "intake_sequencer_pending"
)

// Sink is the controller surface the handler delivers to.
type Sink interface {
	EnqueueCommand(*game.Command) error
	LoadSnapshot(game.Snapshot) error
	Fail(error)
	HandleTransportFailure(error)
}

// Poster schedules work on the session loop. Send blocks while the loop is
// backed up and fails only once the loop has stopped.
type Poster interface {
	Send(ctx context.Context, work func()) error
}

type Config struct {
	// MaxPending bounds the out-of-order messages held by the sequencer.
	MaxPending int
	Publisher  logging.Publisher
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
}

// Handler turns network frames into controller calls. Frames may arrive on
// any goroutine; decoding and delivery happen on the session loop.
type Handler struct {
	sink      Sink
	loop      Poster
	sequencer *Sequencer
	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	actor     logging.EntityRef

	// stopped is only touched on the session loop.
	stopped bool
}

func NewHandler(sink Sink, loop Poster, cfg Config) *Handler {
	h := &Handler{
		sink:      sink,
		loop:      loop,
		sequencer: NewSequencer(cfg.MaxPending),
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		actor:     logging.EntityRef{ID: "server", Kind: logging.EntityKindNetwork},
	}
	if h.publisher == nil {
		h.publisher = logging.NopPublisher()
	}
	if h.logger == nil {
		h.logger = telemetry.LoggerFunc(nil)
	}
	if h.metrics == nil {
		h.metrics = telemetry.NopMetrics()
	}
	return h
}

// HandleMessage schedules a raw frame for decoding and delivery. It blocks
// while the session loop is backed up so no frame is lost to overflow.
func (h *Handler) HandleMessage(data []byte) {
	h.metrics.Add(metricFramesReceived, 1)
	frame := append([]byte(nil), data...)
	if err := h.loop.Send(context.Background(), func() { h.process(frame) }); err != nil {
		h.metrics.Add(metricFramesDropped, 1)
		h.logger.Printf("[intake] frame (%d bytes) not delivered: %v", len(frame), err)
	}
}

// HandleClose reports an unexpected end of the connection.
func (h *Handler) HandleClose(err error) {
	sendErr := h.loop.Send(context.Background(), func() {
		h.stopped = true
		h.sink.HandleTransportFailure(err)
	})
	if sendErr != nil {
		h.logger.Printf("[intake] transport failure (%v) not delivered: %v", err, sendErr)
	}
}

// Sequencer exposes the reorder buffer for inspection.
func (h *Handler) Sequencer() *Sequencer {
	return h.sequencer
}

func (h *Handler) process(frame []byte) {
	if h.stopped {
		return
	}
	msg, err := proto.DecodeServerMessage(frame)
	if err != nil {
		h.fail(err, len(frame))
		return
	}

	before := h.sequencer.Stats().Reordered
	ready, err := h.sequencer.Offer(msg)
	stats := h.sequencer.Stats()
	h.metrics.Store(metricPendingFrames, uint64(stats.Pending))
	payload := network.SequencePayload{Expected: stats.Next, Received: msg.Seq, Pending: stats.Pending}
	if err != nil {
		network.SequenceGap(context.Background(), h.publisher, 0, h.actor, payload, nil)
		h.stopped = true
		h.sink.Fail(err)
		return
	}
	if stats.Reordered > before {
		network.Reordered(context.Background(), h.publisher, 0, h.actor, payload, nil)
	}

	for _, m := range ready {
		if !h.deliver(m) {
			return
		}
	}
}

func (h *Handler) deliver(msg proto.ServerMessage) bool {
	if proto.IsSnapshot(msg) {
		snapshot, err := proto.Snapshot(msg)
		if err != nil {
			h.fail(err, len(msg.Payload))
			return false
		}
		if err := h.sink.LoadSnapshot(snapshot); err != nil {
			h.stopped = true
			h.sink.Fail(err)
			return false
		}
		return true
	}

	cmd, err := proto.Command(msg)
	if err != nil {
		h.fail(err, len(msg.Payload))
		return false
	}
	if err := h.sink.EnqueueCommand(cmd); err != nil {
		// The controller has already failed the session for corrupt
		// commands; closed sessions simply stop accepting.
		h.stopped = true
		if !errors.Is(err, controller.ErrSessionClosed) {
			h.logger.Printf("[intake] command %s rejected: %v", cmd, err)
		}
		return false
	}
	return true
}

func (h *Handler) fail(err error, size int) {
	h.stopped = true
	network.DecodeFailed(context.Background(), h.publisher, 0, h.actor, network.FailurePayload{Error: err.Error(), Size: size}, nil)
	h.sink.Fail(err)
}
