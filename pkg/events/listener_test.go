package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/telekom/issuemail/pkg/config"
	"github.com/telekom/issuemail/pkg/system"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	fetchErrs int
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErrs > 0 {
		r.fetchErrs--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker unavailable")
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type stubHandler struct {
	mu    sync.Mutex
	seen  []string
	errs  map[string]error
	panic string
}

func (h *stubHandler) Dispatch(_ context.Context, env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, env.Type)
	if env.Type == h.panic {
		panic("handler exploded")
	}
	return h.errs[env.Type]
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Offset: offset, Value: []byte(value)}
}

func TestListenerHandleOutcomes(t *testing.T) {
	h := &stubHandler{
		errs: map[string]error{
			"issue_updated":  ErrUnknownEntity,
			"issue_assigned": errors.New("queue full"),
		},
		panic: "issue_resolved",
	}
	l := NewListener(&fakeReader{}, h, system.NewTestLogger())
	ctx := context.Background()

	assert.Equal(t, "ok", l.handle(ctx, message(1, `{"type":"issue_created","issueId":1}`)))
	assert.Equal(t, "skipped", l.handle(ctx, message(2, `{"type":"issue_updated","issueId":1}`)))
	assert.Equal(t, "error", l.handle(ctx, message(3, `{"type":"issue_assigned","issueId":1}`)))
	assert.Equal(t, "error", l.handle(ctx, message(4, `{"type":"issue_resolved","issueId":1}`)))
	assert.Equal(t, "malformed", l.handle(ctx, message(5, `garbage`)))
	assert.Equal(t, []string{"issue_created", "issue_updated", "issue_assigned", "issue_resolved"}, h.seen)
}

func TestListenerTracesEvents(t *testing.T) {
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	otel.SetTextMapPropagator(propagation.TraceContext{})

	h := &stubHandler{errs: map[string]error{"issue_assigned": errors.New("queue full")}}
	l := NewListener(&fakeReader{}, h, system.NewTestLogger())

	traced := message(1, `{"type":"issue_created","issueId":1}`)
	traced.Headers = []kafka.Header{{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")}}
	l.handle(context.Background(), traced)
	l.handle(context.Background(), message(2, `{"type":"issue_assigned","issueId":1}`))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "events.handle", spans[0].Name())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestListenerCommitsEveryMessage(t *testing.T) {
	reader := &fakeReader{
		fetchErrs: 1,
		msgs: []kafka.Message{
			message(1, `{"type":"issue_created","issueId":1}`),
			message(2, `not json`),
			message(3, `{"type":"user_signup","userName":"alice"}`),
		},
	}
	h := &stubHandler{}
	l := NewListener(reader, h, system.NewTestLogger())
	l.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Equal(t, []string{"issue_created", "user_signup"}, h.seen)
}

func TestListenerLifecycle(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{message(1, `{"type":"issue_created","issueId":1}`)}}
	l := NewListener(reader, &stubHandler{}, system.NewTestLogger())
	lc := system.NewLifecycle()
	l.Register(lc)

	lc.Started()
	l.Start()
	require.Eventually(t, func() bool { return reader.commits() == 1 }, 2*time.Second, 5*time.Millisecond)

	lc.Stopping()
	reader.mu.Lock()
	assert.True(t, reader.closed)
	reader.mu.Unlock()
	l.Stop()
}

func TestBuildSASLMechanism(t *testing.T) {
	for _, m := range []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512"} {
		mech, err := buildSASLMechanism(configKafka(m))
		require.NoError(t, err, m)
		assert.Equal(t, m, mech.Name())
	}
	_, err := buildSASLMechanism(configKafka("GSSAPI"))
	assert.Error(t, err)
}

func TestNewReaderValidation(t *testing.T) {
	_, err := NewReader(configKafka(""))
	assert.Error(t, err)

	cfg := configKafka("")
	cfg.Brokers = []string{"localhost:9092"}
	cfg.Topic = "issue-events"
	r, err := NewReader(cfg)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func configKafka(mechanism string) config.Kafka {
	return config.Kafka{SASLMechanism: mechanism, Username: "u", Password: "p"}
}
