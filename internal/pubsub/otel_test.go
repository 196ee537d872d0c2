package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestSetupOTel(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled tracing", func(t *testing.T) {
		tracer, cleanup, err := SetupOTel(ctx, TracingConfig{Enabled: false}, "test")
		require.NoError(t, err)
		require.NotNil(t, tracer)
		require.NotNil(t, cleanup)

		_, span := tracer.Start(ctx, "test")
		assert.False(t, span.SpanContext().IsValid(), "no-op spans carry no context")
		span.End()
		cleanup()
	})

	t.Run("enabled tracing with unreachable collector", func(t *testing.T) {
		config := TracingConfig{
			Enabled:     true,
			ServiceName: "test-service",
			ZipkinURL:   "http://invalid-url:9411/api/v2/spans",
			SampleRatio: 0.5,
		}
		tracer, cleanup, err := SetupOTel(ctx, config, "test")
		require.NoError(t, err)
		require.NotNil(t, tracer)
		cleanup()
	})
}

func TestWatermillBridge_TracesPublishAndProcess(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	bridge := NewWatermillBridgeWithTracer(tp.Tracer(TracerName))
	t.Cleanup(func() { _ = bridge.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, "chat.thread.changed", func(_ context.Context, msg Message) error {
		done <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{
		Topic:    "chat.thread.changed",
		Key:      "alice",
		Payload:  []byte(`{"counterpart":"bob"}`),
		Metadata: map[string]string{"request_id": "req-1"},
	}))

	select {
	case msg := <-done:
		assert.Equal(t, "chat.thread.changed", msg.Topic)
		assert.Equal(t, "alice", msg.Key)
		assert.Equal(t, "req-1", msg.Metadata["request_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	require.Eventually(t, func() bool {
		var publish, process bool
		for _, s := range recorder.Ended() {
			switch s.Name() {
			case "pubsub.publish.chat.thread.changed":
				publish = s.SpanKind() == trace.SpanKindProducer
			case "pubsub.process.chat.thread.changed":
				process = s.SpanKind() == trace.SpanKindConsumer
			}
		}
		return publish && process
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracedPublisher_RecordsPublishFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	bridge := NewWatermillBridgeWithTracer(tp.Tracer(TracerName))
	require.NoError(t, bridge.Close())

	err := bridge.Publish(context.Background(), Message{Topic: "presence.roster.changed", Key: "bob"})
	require.Error(t, err, "publishing on a closed bus fails")

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "pubsub.publish.presence.roster.changed", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)

	var identity string
	for _, kv := range ended[0].Attributes() {
		if kv.Key == "livedash.identity" {
			identity = kv.Value.AsString()
		}
	}
	assert.Equal(t, "bob", identity)
}
