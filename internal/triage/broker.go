package triage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Job is one ephemeral unit of triage work. Attempt is zero-based.
type Job struct {
	TicketID string `json:"ticket_id"`
	TraceID  string `json:"trace_id"`
	Attempt  int    `json:"attempt"`
}

// ErrBrokerClosed is returned by Dequeue once the broker shuts down.
var ErrBrokerClosed = errors.New("broker closed")

// Broker is the queue transport. Delivery is at-least-once; ordering across
// tickets is not guaranteed.
type Broker interface {
	Enqueue(ctx context.Context, job Job) error
	// EnqueueDelayed makes the job available for dequeue after the delay.
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error
	// Dequeue blocks until a job is available, ctx is done, or the broker
	// closes.
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// memoryBroker is a channel-backed broker for tests and single-process
// deployments without Redis.
type memoryBroker struct {
	ready  chan Job
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewMemoryBroker builds an in-process broker with the given buffer size.
func NewMemoryBroker(buffer int) Broker {
	if buffer <= 0 {
		buffer = 128
	}
	return &memoryBroker{
		ready:  make(chan Job, buffer),
		timers: make(map[*time.Timer]struct{}),
	}
}

func (b *memoryBroker) Enqueue(ctx context.Context, job Job) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	b.mu.Unlock()

	select {
	case b.ready <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *memoryBroker) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	if delay <= 0 {
		return b.Enqueue(ctx, job)
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}
		select {
		case b.ready <- job:
		default:
			// Full buffer on a delayed re-enqueue; drop rather than block
			// the timer goroutine. The job remains visible in the failed
			// history of the queue that scheduled it.
		}
	})
	b.timers[timer] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *memoryBroker) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job, ok := <-b.ready:
		if !ok {
			return Job{}, ErrBrokerClosed
		}
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (b *memoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for timer := range b.timers {
		timer.Stop()
	}
	close(b.ready)
	return nil
}
