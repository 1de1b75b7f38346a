package session

import (
	"context"
	"errors"
	"sync"

	"hindsight/client/internal/telemetry"
)

// ErrLoopStopped is returned when work is submitted after Run has returned.
var ErrLoopStopped = errors.New("session loop stopped")

// ErrMailboxFull is returned by Do when the mailbox cannot accept more work.
var ErrMailboxFull = errors.New("session mailbox full")

const loopExecutedMetricKey = "session_loop_executed_total"

// LoopConfig tunes the mailbox backing the loop.
type LoopConfig struct {
	Capacity    int
	WarningStep int
}

// Loop serialises every controller entry point onto one goroutine. Network
// callbacks and user intents post work from any goroutine; Run executes it in
// arrival order, each item to completion before the next starts.
type Loop struct {
	mailbox *Mailbox
	wake    chan struct{}
	config  LoopConfig
	logger  telemetry.Logger
	metrics telemetry.Metrics

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	// room is closed and replaced each time Run drains the mailbox.
	room chan struct{}
}

func NewLoop(cfg LoopConfig, logger telemetry.Logger, metrics telemetry.Metrics) *Loop {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Loop{
		mailbox: NewMailbox(cfg.Capacity, metrics),
		wake:    make(chan struct{}, 1),
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
		room:    make(chan struct{}),
	}
}

// Post schedules work and reports whether it was accepted.
func (l *Loop) Post(work Work) bool {
	if l == nil || work == nil {
		return false
	}
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		return false
	}
	if !l.mailbox.Push(work) {
		l.logger.Printf("[session] mailbox full (capacity=%d), dropping work", l.config.Capacity)
		return false
	}
	l.pushed()
	return true
}

// Send posts work, waiting for the loop to make room while the mailbox is
// full. It fails only when the loop stops or ctx ends. Work already running
// on the loop must not Send into a full mailbox.
func (l *Loop) Send(ctx context.Context, work Work) error {
	if work == nil {
		return nil
	}
	for {
		l.mu.Lock()
		stopped, room := l.stopped, l.room
		l.mu.Unlock()
		if stopped {
			return ErrLoopStopped
		}
		if l.mailbox.Push(work) {
			l.pushed()
			return nil
		}
		select {
		case <-room:
		case <-l.done:
			return ErrLoopStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) pushed() {
	if step := l.config.WarningStep; step > 0 {
		if length := l.mailbox.Len(); length >= step && length%step == 0 {
			l.logger.Printf("[session] mailbox backlog at %d items", length)
		}
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts work and blocks until it has run, the loop stops, or ctx ends.
func (l *Loop) Do(ctx context.Context, work Work) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		work()
	}) {
		if l.Stopped() {
			return ErrLoopStopped
		}
		return ErrMailboxFull
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted work until ctx is cancelled. Work still queued at
// cancellation is discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		if !l.stopped {
			l.stopped = true
			close(l.done)
		}
		l.mu.Unlock()
		l.mailbox.Drain()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
			batch := l.mailbox.Drain()
			l.mu.Lock()
			close(l.room)
			l.room = make(chan struct{})
			l.mu.Unlock()
			for _, work := range batch {
				if ctx.Err() != nil {
					return nil
				}
				work()
				l.metrics.Add(loopExecutedMetricKey, 1)
			}
		}
	}
}

// Stopped reports whether Run has returned.
func (l *Loop) Stopped() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Done is closed once Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
