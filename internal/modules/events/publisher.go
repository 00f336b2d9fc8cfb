// README: Publishers for domain events (Kafka when brokers are configured, no-op otherwise).
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	// Publish must not block the caller on broker I/O.
	Publish(ctx context.Context, e Envelope)
}

type Nop struct{}

func (Nop) Publish(context.Context, Envelope) {}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher buffers envelopes in an inbox drained by one goroutine.
// Messages are keyed by correlation id so one order's events stay ordered.
type KafkaPublisher struct {
	w     messageWriter
	inbox chan kafka.Message
	log   *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewKafkaPublisher(brokers []string, topic string, buf int, log *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, buf, log)
}

func newKafkaPublisher(w messageWriter, buf int, log *slog.Logger) *KafkaPublisher {
	if buf <= 0 {
		buf = 1
	}
	return &KafkaPublisher{
		w:     w,
		inbox: make(chan kafka.Message, buf),
		log:   log,
		done:  make(chan struct{}),
	}
}

func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.log.Error("publish domain event",
					slog.String("action", "kafka_publish"),
					slog.String("key", string(m.Key)),
					slog.Any("error", err),
				)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.log.Error("close kafka writer", slog.String("action", "kafka_close"), slog.Any("error", err))
		}
	}()
}

func (p *KafkaPublisher) Publish(_ context.Context, e Envelope) {
	value, err := json.Marshal(e)
	if err != nil {
		p.log.Error("encode envelope", slog.String("action", "kafka_publish"), slog.Any("error", err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(e.CorrelationID),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.inbox <- msg:
	default:
		p.log.Warn("event inbox full, dropping",
			slog.String("action", "kafka_publish"),
			slog.String("event_type", e.EventType),
		)
	}
}

// Close flushes the inbox and closes the writer.
func (p *KafkaPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
	p.mu.Unlock()
	<-p.done
}
