// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OTelConfig configures an OTelTracer.
type OTelConfig struct {
	ServiceName string
	// OTLPEndpoint is the collector's host:port; empty disables the
	// exporter and keeps spans in-process only (still real otel spans,
	// just unexported — useful for local runs without a collector).
	OTLPEndpoint string
}

// OTelTracer bridges the run's Tracer interface onto a real OpenTelemetry
// SDK TracerProvider, and registers a Prometheus counter/histogram pair
// for RecordMetric so the same call site feeds both backends.
type OTelTracer struct {
	tracer   oteltrace.Tracer
	provider *sdktrace.TracerProvider

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	spans    map[*Span]oteltrace.Span
}

// NewOTelTracer builds an OTelTracer. If cfg.OTLPEndpoint is empty, spans
// are still created and ended through the real SDK but never exported,
// which is adequate for local development without a collector running.
func NewOTelTracer(ctx context.Context, cfg OTelConfig) (*OTelTracer, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: build otel resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("observability: build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &OTelTracer{
		tracer:   provider.Tracer("swarm"),
		provider: provider,
		counters: make(map[string]*prometheus.CounterVec),
		spans:    make(map[*Span]oteltrace.Span),
	}, nil
}

// StartSpan opens a real otel span, and mirrors its identifiers into the
// run's own Span value so downstream code (receipts, event payloads)
// keeps working against the stable Span shape regardless of backend.
func (t *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	ctx, otelSpan := t.tracer.Start(ctx, name)
	sc := otelSpan.SpanContext()

	span := &Span{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.ParentID = parent.SpanID
	}
	for _, opt := range opts {
		opt(span)
	}
	for k, v := range span.Attributes {
		otelSpan.SetAttributes(toOtelAttribute(k, v))
	}

	t.mu.Lock()
	t.spans[span] = otelSpan
	t.mu.Unlock()

	ctx = context.WithValue(ctx, otelSpanContextKey, otelSpan)
	return ContextWithSpan(ctx, span), span
}

// EndSpan closes the real otel span backing the given run Span and
// records local duration bookkeeping on the Span value itself.
func (t *OTelTracer) EndSpan(span *Span) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	t.mu.Lock()
	otelSpan, ok := t.spans[span]
	delete(t.spans, span)
	t.mu.Unlock()
	if ok {
		otelSpan.End()
	}
}

// RecordMetric increments a Prometheus counter keyed by name, lazily
// registering it on first use with the label set of this call.
func (t *OTelTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	labelNames := make([]string, 0, len(labels))
	for k := range labels {
		labelNames = append(labelNames, k)
	}

	counter, ok := t.counters[name]
	if !ok {
		counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_" + name,
			Help: "swarm runtime metric: " + name,
		}, labelNames)
		if err := prometheus.Register(counter); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				counter = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
		t.counters[name] = counter
	}
	counter.With(labels).Add(value)
}

// RecordEvent attaches a point-in-time event to the otel span in ctx, if
// any; otherwise it is a no-op (matching the no-op tracer's contract for
// callers outside a span).
func (t *OTelTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	otelSpan, ok := ctx.Value(otelSpanContextKey).(oteltrace.Span)
	if !ok || otelSpan == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, toOtelAttribute(k, v))
	}
	otelSpan.AddEvent(name, oteltrace.WithAttributes(attrs...))
}

// Flush forces the batch span processor to export buffered spans.
func (t *OTelTracer) Flush(ctx context.Context) error {
	return t.provider.ForceFlush(ctx)
}

// Shutdown stops the tracer provider, flushing and releasing exporter
// resources. Call once at process exit.
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func toOtelAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

type otelContextKeyType string

const otelSpanContextKey otelContextKeyType = "swarm.otel_span"

var _ Tracer = (*OTelTracer)(nil)
