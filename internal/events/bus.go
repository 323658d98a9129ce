package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ephemcp/internal/api"
	"ephemcp/pkg/logging"
)

const publishTimeout = 5 * time.Second

// Bus queues events and delivers them to a Publisher from one goroutine.
type Bus struct {
	publisher Publisher
	queue     chan api.StateChangeEvent

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64

	done chan struct{}
	once sync.Once
}

// NewBus starts a bus with the given queue size.
func NewBus(publisher Publisher, size int) *Bus {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if size <= 0 {
		size = 1
	}
	b := &Bus{
		publisher: publisher,
		queue:     make(chan api.StateChangeEvent, size),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

// Emit enqueues ev without blocking. It reports false when the event was
// dropped because the bus is full or closed.
func (b *Bus) Emit(ev api.StateChangeEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.queue <- ev:
		return true
	default:
		b.dropped.Add(1)
		logging.Warn("Events", "Event queue full, dropping %s -> %s for %s", ev.From, ev.To, ev.ServerID)
		return false
	}
}

// Dropped returns the number of events dropped because the queue was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) run() {
	defer close(b.done)
	for ev := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := b.publisher.Publish(ctx, ev); err != nil {
			logging.Warn("Events", "Failed to publish event for %s: %v", ev.ServerID, err)
		}
		cancel()
	}
}

// Close stops accepting events, delivers what is queued and closes the
// publisher. It returns early with ctx's error if delivery does not finish.
func (b *Bus) Close(ctx context.Context) error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.queue)
		b.mu.Unlock()
	})

	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.publisher.Close()
}
