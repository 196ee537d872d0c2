package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation name used for every livedash span.
const TracerName = "livedash"

// TracingConfig selects whether spans are exported to Zipkin. It is filled
// from PUBSUB_TRACING_* by the config package.
type TracingConfig struct {
	Enabled     bool
	ServiceName string  `validate:"required"`
	ZipkinURL   string  `validate:"omitempty,url"`
	SampleRatio float64 `validate:"gte=0,lte=1"`
}

// NoopTracer returns the tracer used when tracing is off.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(TracerName)
}

// SetupOTel installs a Zipkin-backed tracer provider and returns its tracer
// together with a flush function. A disabled config yields a no-op tracer
// and a cleanup that does nothing.
func SetupOTel(ctx context.Context, cfg TracingConfig, version string) (trace.Tracer, func(), error) {
	if !cfg.Enabled {
		return NoopTracer(), func() {}, nil
	}

	exporter, err := zipkin.New(cfg.ZipkinURL)
	if err != nil {
		return nil, nil, fmt.Errorf("zipkin exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(version),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio == 0 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(TracerName), func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Tracer provider shutdown failed", "error", err)
		}
	}, nil
}

// tracedPublisher opens a publish span per message before handing the batch
// to the wrapped publisher. Spans end once the batch is published.
type tracedPublisher struct {
	message.Publisher
	tracer trace.Tracer
}

func (p tracedPublisher) Publish(topic string, msgs ...*message.Message) error {
	spans := make([]trace.Span, len(msgs))
	for i, msg := range msgs {
		ctx, span := p.tracer.Start(msg.Context(), "pubsub.publish."+topic,
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(messageAttributes("publish", topic, msg)...),
		)
		msg.SetContext(ctx)
		spans[i] = span
	}

	err := p.Publisher.Publish(topic, msgs...)
	for _, span := range spans {
		endSpan(span, err)
	}
	return err
}

func messageAttributes(op, topic string, msg *message.Message) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", "watermill"),
		attribute.String("messaging.operation", op),
		attribute.String("messaging.destination", topic),
		attribute.String("messaging.message_id", msg.UUID),
		attribute.String("livedash.identity", msg.Metadata.Get(metaKeyIdentity)),
		attribute.Int("messaging.message_payload_size_bytes", len(msg.Payload)),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
