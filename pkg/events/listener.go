package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/telekom/issuemail/pkg/metrics"
	"github.com/telekom/issuemail/pkg/system"
	"github.com/telekom/issuemail/pkg/telemetry"
)

// MessageReader is the part of *kafka.Reader the listener uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded envelope.
type Handler interface {
	Dispatch(ctx context.Context, env Envelope) error
}

// Listener consumes envelopes and hands them to a Handler. Every message is
// committed once handled, also when it fails, so a bad event never blocks
// its partition.
type Listener struct {
	reader     MessageReader
	handler    Handler
	retryDelay time.Duration
	log        *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewListener(reader MessageReader, handler Handler, log *zap.SugaredLogger) *Listener {
	return &Listener{
		reader:     reader,
		handler:    handler,
		retryDelay: time.Second,
		log:        log.Named("event-listener"),
	}
}

// Run consumes until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warnw("Fetching event failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.retryDelay):
			}
			continue
		}

		l.handle(ctx, msg)
		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warnw("Committing event failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// handle returns the outcome recorded in the consumed events metric.
func (l *Listener) handle(ctx context.Context, msg kafka.Message) (outcome string) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	ctx, span := telemetry.StartSpan(ctx, "events.handle",
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int("messaging.partition", msg.Partition),
		attribute.Int64("messaging.offset", msg.Offset))

	kind := KindUnknown
	var handleErr error
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorw("panic while handling event recovered", "offset", msg.Offset, "panic", r)
			outcome = "error"
			handleErr = fmt.Errorf("panic: %v", r)
		}
		metrics.EventsConsumed.WithLabelValues(string(kind), outcome).Inc()
		span.SetAttributes(attribute.String("event.kind", string(kind)), attribute.String("event.outcome", outcome))
		if outcome != "error" {
			handleErr = nil
		}
		telemetry.EndSpan(span, handleErr)
	}()

	env, err := Decode(msg.Value)
	if err != nil {
		l.log.Warnw("Dropping malformed event", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return "malformed"
	}
	kind = env.Kind()

	err = l.handler.Dispatch(ctx, env)
	handleErr = err
	switch {
	case err == nil:
		l.log.Debugw("Event handled", "type", env.Type, "offset", msg.Offset)
		return "ok"
	case errors.Is(err, ErrUnknownEntity):
		l.log.Infow("Event refers to a deleted entity, skipping", "type", env.Type, "error", err)
		return "skipped"
	case errors.Is(err, ErrMalformed):
		l.log.Warnw("Dropping malformed event", "type", env.Type, "error", err)
		return "malformed"
	default:
		l.log.Errorw("Handling event failed", "type", env.Type, "offset", msg.Offset, "error", err)
		return "error"
	}
}

// Register starts the listener with the host and stops it on shutdown.
func (l *Listener) Register(lc *system.Lifecycle) {
	lc.OnStarted(l.Start)
	lc.OnStopping(l.Stop)
}

// Start runs the listener on its own goroutine. Calling Start twice is a no-op.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			l.log.Errorw("Event listener stopped", "error", err)
		}
	}(l.done)
	l.log.Info("Event listener started")
}

// Stop cancels the listener, waits for it and closes the reader.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	if err := l.reader.Close(); err != nil {
		l.log.Warnw("Closing event reader failed", "error", err)
		return
	}
	l.log.Info("Event listener stopped")
}

// headerCarrier exposes Kafka message headers to the trace propagator.
type headerCarrier []kafka.Header

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set is a no-op, the listener only extracts.
func (c headerCarrier) Set(string, string) {}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for _, h := range c {
		keys = append(keys, h.Key)
	}
	return keys
}
