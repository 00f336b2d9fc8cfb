package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

type countingSink struct {
	mu    sync.Mutex
	seen  []Message
	block chan struct{}
	panic bool
}

func (s *countingSink) Deliver(_ context.Context, m Message) {
	if s.block != nil {
		<-s.block
	}
	if s.panic {
		panic("sink exploded")
	}
	s.mu.Lock()
	s.seen = append(s.seen, m)
	s.mu.Unlock()
}

func TestOutboxDrainsOnClose(t *testing.T) {
	sink := &countingSink{}
	o := NewOutbox(sink, 16, 2, discardLogger())
	o.Start(context.Background())

	for i := 0; i < 10; i++ {
		if !o.Enqueue(ToUser("u", Notification{Title: "n"})) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	o.Close()

	if len(sink.seen) != 10 {
		t.Fatalf("expected 10 delivered after drain, got %d", len(sink.seen))
	}
	if o.Enqueue(ToUser("u", Notification{})) {
		t.Fatalf("enqueue after close should be rejected")
	}
}

func TestOutboxFullQueueDoesNotBlock(t *testing.T) {
	sink := &countingSink{block: make(chan struct{})}
	o := NewOutbox(sink, 1, 1, discardLogger())
	o.Start(context.Background())

	var accepted atomic.Int32
	for i := 0; i < 5; i++ {
		if o.Enqueue(ToUser("u", Notification{})) {
			accepted.Add(1)
		}
	}
	// one message held by the worker, at most one in the buffer
	if accepted.Load() > 2 {
		t.Fatalf("expected most messages dropped, %d accepted", accepted.Load())
	}
	close(sink.block)
	o.Close()
}

func TestOutboxSurvivesSinkPanic(t *testing.T) {
	sink := &countingSink{panic: true}
	o := NewOutbox(sink, 4, 1, discardLogger())
	o.Start(context.Background())
	o.Enqueue(ToUser("u", Notification{}), ToUser("u", Notification{}))
	o.Close()
}
