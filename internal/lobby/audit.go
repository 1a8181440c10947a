package lobby

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type auditEvent struct {
	what string
	fn   func(ctx context.Context) error
}

// auditQueue delivers Recorder events on one goroutine in the order they were
// enqueued, so a slow audit store never runs under the coordinator lock.
type auditQueue struct {
	logger  *zap.Logger
	timeout time.Duration
	events  chan auditEvent
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func newAuditQueue(size int, timeout time.Duration, logger *zap.Logger) *auditQueue {
	q := &auditQueue{
		logger:  logger,
		timeout: timeout,
		events:  make(chan auditEvent, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue never blocks. When the buffer is full or the queue is closed the
// event is dropped and logged.
func (q *auditQueue) enqueue(what string, fn func(ctx context.Context) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("audit queue closed, dropping event", zap.String("event", what))
		return
	}
	select {
	case q.events <- auditEvent{what: what, fn: fn}:
	default:
		q.logger.Warn("audit queue full, dropping event", zap.String("event", what))
	}
}

// close stops accepting events and waits for the queued ones to be delivered.
func (q *auditQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *auditQueue) run() {
	defer close(q.done)
	for ev := range q.events {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := ev.fn(ctx); err != nil {
			q.logger.Warn("recording "+ev.what, zap.Error(err))
		}
		cancel()
	}
}
