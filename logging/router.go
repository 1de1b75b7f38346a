package logging

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/trace"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// Sink persists routed events. Write is only called from the sink's own
// worker goroutine.
type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

type NamedSink struct {
	Name string
	Sink Sink
}

const (
	defaultQueueSize    = 512
	minSinkBacklog      = 32
	maxSinkBacklog      = 1024
	defaultDropInterval = 5 * time.Second
	sinkRetryInitial    = 2 * time.Second
	sinkRetryMax        = 32 * time.Second
)

// Router fans published events out to sinks without blocking publishers.
// Events that do not fit in the queue are dropped and counted.
type Router struct {
	cfg         Config
	clock       Clock
	fallback    *log.Logger
	minSeverity Severity
	fields      map[string]any

	queue   chan Event
	workers []*sinkWorker
	stop    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup

	eventsTotal  atomic.Uint64
	droppedTotal atomic.Uint64
	nextDropLog  atomic.Int64
}

// RouterStats summarises delivery since the router started.
type RouterStats struct {
	EventsTotal  uint64
	DroppedTotal uint64
	Sinks        map[string]SinkStats
}

// SinkStats counts the outcome of writes to a single sink.
type SinkStats struct {
	Written uint64
	Failed  uint64
	Dropped uint64
}

// NewRouter starts a router delivering to the provided sinks. A nil fallback
// logs router failures to stderr.
func NewRouter(clock Clock, cfg Config, fallback *log.Logger, namedSinks []NamedSink) (*Router, error) {
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	queueSize := cfg.BufferSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Router{
		cfg:         cfg,
		clock:       clock,
		fallback:    fallback,
		minSeverity: cfg.MinimumSeverity,
		fields:      cfg.CloneFields(),
		queue:       make(chan Event, queueSize),
		stop:        make(chan struct{}),
	}

	backlog := min(max(queueSize, minSinkBacklog), maxSinkBacklog)
	for _, named := range namedSinks {
		if named.Sink == nil {
			continue
		}
		r.workers = append(r.workers, newSinkWorker(named, backlog, fallback))
	}

	for _, w := range r.workers {
		r.wg.Add(1)
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(w)
	}
	r.wg.Add(1)
	go r.dispatch()
	return r, nil
}

// dispatch moves queued events to the sink workers until Close, then
// flushes whatever is still queued.
func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case event := <-r.queue:
			r.forward(event)
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	event = mergeFields(event, r.fields)
	r.eventsTotal.Add(1)
	for _, w := range r.workers {
		w.enqueue(event)
	}
}

// Publish queues the event for delivery. Events below the configured
// severity, events without a type, and events published after Close are
// discarded.
func (r *Router) Publish(ctx context.Context, event Event) {
	if event.Type == "" || event.Severity < r.minSeverity || r.closed.Load() {
		return
	}
	if event.TraceID == "" && ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			event.TraceID = sc.TraceID().String()
		}
	}
	select {
	case r.queue <- event:
	default:
		r.dropped(event)
	}
}

func (r *Router) dropped(event Event) {
	r.droppedTotal.Add(1)
	interval := r.cfg.DropWarnInterval
	if interval <= 0 {
		interval = defaultDropInterval
	}
	now := time.Now().UnixNano()
	next := r.nextDropLog.Load()
	if now < next {
		return
	}
	if r.nextDropLog.CompareAndSwap(next, now+interval.Nanoseconds()) {
		r.fallback.Printf("queue full, dropping event type=%s cursor=%d (dropped=%d)", event.Type, event.Cursor, r.droppedTotal.Load())
	}
}

// Close stops accepting events, flushes the queue, and closes every sink.
// The first sink close error is returned.
func (r *Router) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)
	flushed := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}
	var firstErr error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) Stats() RouterStats {
	stats := RouterStats{
		EventsTotal:  r.eventsTotal.Load(),
		DroppedTotal: r.droppedTotal.Load(),
		Sinks:        make(map[string]SinkStats, len(r.workers)),
	}
	for _, w := range r.workers {
		stats.Sinks[w.name] = SinkStats{
			Written: w.written.Load(),
			Failed:  w.failed.Load(),
			Dropped: w.dropped.Load(),
		}
	}
	return stats
}

// Sink returns the sink registered under name.
func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

// sinkWorker owns one sink. After a failed write it pauses on an
// exponential schedule before the next attempt; a success resets it.
type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	retry    *backoff.ExponentialBackOff
	resumeAt time.Time

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func newSinkWorker(named NamedSink, backlog int, fallback *log.Logger) *sinkWorker {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = sinkRetryInitial
	retry.MaxInterval = sinkRetryMax
	retry.Multiplier = 2
	retry.RandomizationFactor = 0
	retry.Reset()
	return &sinkWorker{
		name:     named.Name,
		sink:     named.Sink,
		events:   make(chan Event, backlog),
		fallback: fallback,
		retry:    retry,
	}
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- cloneEvent(event):
	default:
		w.dropped.Add(1)
		w.fallback.Printf("sink %s backlog full dropping event type=%s", w.name, event.Type)
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		if wait := time.Until(w.resumeAt); wait > 0 {
			time.Sleep(wait)
		}
		err := w.sink.Write(event)
		if err == nil {
			w.written.Add(1)
			if !w.resumeAt.IsZero() {
				w.retry.Reset()
				w.resumeAt = time.Time{}
			}
			continue
		}
		w.failed.Add(1)
		delay := w.retry.NextBackOff()
		w.resumeAt = time.Now().Add(delay)
		w.fallback.Printf("sink %s failed: %v (retry in %s)", w.name, err, delay)
	}
}
