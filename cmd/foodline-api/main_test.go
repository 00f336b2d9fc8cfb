// README: Shutdown ordering of the notification pipeline.
package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"foodline/internal/modules/notification"
	"foodline/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// slowSink stands in for RedisRelay.Deliver: each publish only reaches
// subscribers if the relay is still running.
type slowSink struct {
	relayStopped *atomic.Bool

	mu   sync.Mutex
	seen int
	lost int
}

func (s *slowSink) Deliver(_ context.Context, _ notification.Message) {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	if s.relayStopped.Load() {
		s.lost++
	}
}

func TestStopNotificationsDrainsBeforeRelayStops(t *testing.T) {
	var stopped atomic.Bool
	sink := &slowSink{relayStopped: &stopped}
	outbox := notification.NewOutbox(sink, 16, 1, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	outbox.Start(ctx)
	for i := 0; i < 8; i++ {
		if !outbox.Enqueue(notification.ToUser(types.ID("c1"), notification.Notification{Title: "status"})) {
			t.Fatalf("enqueue %d refused", i)
		}
	}
	// Signal arrives while the queue is still full.
	cancel()

	stopNotifications(outbox, func() { stopped.Store(true) }, notification.NewRegistry())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.seen != 8 {
		t.Fatalf("expected 8 deliveries, got %d", sink.seen)
	}
	if sink.lost != 0 {
		t.Fatalf("%d deliveries happened after the relay stopped", sink.lost)
	}
	if !stopped.Load() {
		t.Fatal("relay was never stopped")
	}
}

type blockingRelay struct {
	started chan struct{}
	exited  atomic.Bool
}

func (r *blockingRelay) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	time.Sleep(5 * time.Millisecond)
	r.exited.Store(true)
	return ctx.Err()
}

func TestRunRelayStopWaitsForSubscriber(t *testing.T) {
	relay := &blockingRelay{started: make(chan struct{})}
	stop := runRelay(relay, discardLogger())
	<-relay.started

	if relay.exited.Load() {
		t.Fatal("relay exited before stop")
	}
	stop()
	if !relay.exited.Load() {
		t.Fatal("stop returned before the subscriber exited")
	}
}
