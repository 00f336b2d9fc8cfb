// README: Outbox decouples notification delivery from the request that produced it.
package notification

import (
	"context"
	"log/slog"
	"sync"
)

// Sink consumes outbox messages. Dispatcher delivers locally; RedisRelay fans out across instances.
type Sink interface {
	Deliver(ctx context.Context, m Message)
}

type Outbox struct {
	sink    Sink
	queue   chan Message
	workers int
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewOutbox(sink Sink, size, workers int, log *slog.Logger) *Outbox {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Outbox{
		sink:    sink,
		queue:   make(chan Message, size),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. They keep draining after ctx is done until Close.
func (o *Outbox) Start(ctx context.Context) {
	deliverCtx := context.WithoutCancel(ctx)
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for m := range o.queue {
				o.deliver(deliverCtx, m)
			}
		}()
	}
}

// Enqueue never blocks. A full or closed queue drops the message and reports false.
func (o *Outbox) Enqueue(msgs ...Message) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		o.log.Warn("outbox closed, notification dropped", slog.String("action", "enqueue"))
		return false
	}
	ok := true
	for _, m := range msgs {
		select {
		case o.queue <- m:
		default:
			ok = false
			o.log.Warn("outbox full, notification dropped",
				slog.String("action", "enqueue"),
				slog.String("type", string(m.Notification.Type)),
			)
		}
	}
	return ok
}

// Close stops intake and waits for queued messages to be delivered.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Outbox) deliver(ctx context.Context, m Message) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("notification delivery panicked",
				slog.String("action", "deliver"),
				slog.Any("panic", r),
			)
		}
	}()
	o.sink.Deliver(ctx, m)
}
