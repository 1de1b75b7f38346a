package session

import "sync"

const (
	mailboxOccupancyMetricKey = "session_mailbox_occupancy"
	mailboxOverflowMetricKey  = "session_mailbox_overflow_total"
)

// Work is a unit executed on the session loop.
type Work = func()

// Mailbox stores posted work in a fixed-size ring. It is safe for concurrent
// producers and a single consumer.
type Mailbox struct {
	mu      sync.Mutex
	data    []Work
	head    int
	tail    int
	count   int
	metrics metrics
}

type metrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// NewMailbox constructs a ring with the provided capacity.
func NewMailbox(capacity int, metrics metrics) *Mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Mailbox{
		data:    make([]Work, capacity),
		metrics: metrics,
	}
}

func (b *Mailbox) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push stages work, returning false if the mailbox is full.
func (b *Mailbox) Push(work Work) bool {
	if b == nil || work == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		if b.metrics != nil {
			b.metrics.Add(mailboxOverflowMetricKey, 1)
		}
		return false
	}
	b.data[b.tail] = work
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
	return true
}

// Drain returns all staged work in FIFO order and clears the ring.
func (b *Mailbox) Drain() []Work {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	items := make([]Work, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		items[i] = b.data[idx]
		b.data[idx] = nil
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return items
}

func (b *Mailbox) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Mailbox) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(mailboxOccupancyMetricKey, uint64(b.count))
}
