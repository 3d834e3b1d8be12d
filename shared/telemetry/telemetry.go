// Package telemetry wires OpenTelemetry tracing and metrics for the
// checkout services. Traces ship over OTLP; metrics go to OTLP and are
// also exposed for Prometheus scrapes.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	metricSDK "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	traceSDK "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Config identifies a service to the telemetry backends.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

// WithOTLPEndpoint returns a copy of the config pointed at the given
// OTLP collector endpoint.
func (c Config) WithOTLPEndpoint(endpoint string) Config {
	c.OTLPEndpoint = endpoint
	return c
}

// OrdersServiceConfig is the telemetry configuration for the orders service.
var OrdersServiceConfig = Config{
	ServiceName:    "orders-service",
	ServiceVersion: "1.0.0",
}

// Telemetry carries the tracer and meter of one service instance.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter
	config Config
}

// Init builds the trace and metric providers, installs them globally, and
// returns the service handle together with a shutdown function that
// flushes both pipelines.
func Init(ctx context.Context, config Config) (*Telemetry, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	traceProvider, err := newTraceProvider(ctx, res, config.OTLPEndpoint)
	if err != nil {
		return nil, nil, err
	}
	meterProvider, err := newMeterProvider(ctx, res, config.OTLPEndpoint)
	if err != nil {
		flushProvider(traceProvider.Shutdown)
		return nil, nil, err
	}

	otel.SetTracerProvider(traceProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tel := &Telemetry{
		config: config,
		tracer: otel.Tracer(config.ServiceName),
		meter:  otel.Meter(config.ServiceName),
	}
	shutdown := func() {
		flushProvider(traceProvider.Shutdown)
		flushProvider(meterProvider.Shutdown)
	}
	return tel, shutdown, nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource, endpoint string) (*traceSDK.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	return traceSDK.NewTracerProvider(
		traceSDK.WithBatcher(exporter),
		traceSDK.WithResource(res),
		traceSDK.WithSampler(traceSDK.AlwaysSample()),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, endpoint string) (*metricSDK.MeterProvider, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	otlpExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	return metricSDK.NewMeterProvider(
		metricSDK.WithResource(res),
		metricSDK.WithReader(promExporter),
		metricSDK.WithReader(metricSDK.NewPeriodicReader(otlpExporter,
			metricSDK.WithInterval(30*time.Second),
		)),
	), nil
}

func flushProvider(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdown(ctx)
}

type contextKey string

const telemetryKey contextKey = "telemetry"

// WithTelemetry injects the service telemetry into the context so request
// and worker code record against the right tracer and meter.
func WithTelemetry(ctx context.Context, tel *Telemetry) context.Context {
	return context.WithValue(ctx, telemetryKey, tel)
}

// FromContext extracts telemetry from the context, nil when absent.
func FromContext(ctx context.Context) *Telemetry {
	tel, _ := ctx.Value(telemetryKey).(*Telemetry)
	return tel
}

// StartSpan starts a span on the context's tracer, falling back to the
// global tracer outside an instrumented request.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tel := FromContext(ctx); tel != nil {
		return tel.tracer.Start(ctx, name, opts...)
	}
	return otel.Tracer("fallback").Start(ctx, name, opts...)
}

func meterFor(ctx context.Context) (metric.Meter, string) {
	if tel := FromContext(ctx); tel != nil {
		return tel.meter, tel.config.ServiceName
	}
	return otel.Meter("fallback"), "unknown"
}

// RecordCounter increments a counter, tagged with the owning service.
func RecordCounter(ctx context.Context, name, description string, value int64, attrs ...attribute.KeyValue) {
	meter, service := meterFor(ctx)
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return
	}
	attrs = append(attrs, attribute.String("service", service))
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// RecordHistogram records one observation into a histogram, tagged with
// the owning service.
func RecordHistogram(ctx context.Context, name, description string, value float64, attrs ...attribute.KeyValue) {
	meter, service := meterFor(ctx)
	histogram, err := meter.Float64Histogram(name, metric.WithDescription(description))
	if err != nil {
		return
	}
	attrs = append(attrs, attribute.String("service", service))
	histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordDuration records the seconds elapsed since start into a histogram.
func RecordDuration(ctx context.Context, name, description string, start time.Time, attrs ...attribute.KeyValue) {
	RecordHistogram(ctx, name, description, time.Since(start).Seconds(), attrs...)
}
